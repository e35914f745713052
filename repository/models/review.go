package models

import "time"

// Review is a signed-in customer's 1 to 5 star rating of a product
type Review struct {
	ID        string    `gorm:"column:id;primaryKey;type:varchar(50)" json:"id"`
	ProductID string    `gorm:"column:product_id;type:varchar(50);not null;index" json:"product_id"`
	Product   *Product  `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE" json:"-"`
	UserID    string    `gorm:"column:user_id;type:varchar(50);not null;index" json:"user_id"`
	Rating    int       `gorm:"column:rating;not null;check:chk_reviews_rating_range,rating BETWEEN 1 AND 5" json:"rating"`
	Comment   string    `gorm:"column:comment;type:text" json:"comment"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Review) TableName() string { return "reviews" }
