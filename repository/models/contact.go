package models

import "time"

type ContactStatus string

const (
	ContactNew      ContactStatus = "new"
	ContactRead     ContactStatus = "read"
	ContactReplied  ContactStatus = "replied"
	ContactArchived ContactStatus = "archived"
)

func (s ContactStatus) Valid() bool {
	switch s {
	case ContactNew, ContactRead, ContactReplied, ContactArchived:
		return true
	}
	return false
}

// Contact is a message sent through the storefront contact form
type Contact struct {
	ID        string        `gorm:"column:id;primaryKey;type:varchar(50)" json:"id"`
	Name      string        `gorm:"column:name;type:varchar(100);not null" json:"name"`
	Email     string        `gorm:"column:email;type:varchar(254);not null" json:"email"`
	Message   string        `gorm:"column:message;type:text;not null" json:"message"`
	Status    ContactStatus `gorm:"column:status;type:varchar(20);not null;default:'new';index" json:"status"`
	CreatedAt time.Time     `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time     `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Contact) TableName() string { return "contacts" }
