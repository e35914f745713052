package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/ribon-matchalatte/backend/inventory"
	"github.com/ribon-matchalatte/backend/repository/models"
)

func (r *Repository) CreateContact(ctx context.Context, contact *models.Contact) error {
	if contact.ID == "" {
		contact.ID = uuid.NewString()
	}
	return translateError(r.db.WithContext(ctx).Create(contact).Error, "contact", contact.ID)
}

func (r *Repository) ListContacts(ctx context.Context, status models.ContactStatus) ([]models.Contact, error) {
	var contacts []models.Contact
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	err := query.Find(&contacts).Error
	return contacts, translateError(err, "contact", "")
}

func (r *Repository) Contact(ctx context.Context, id string) (*models.Contact, error) {
	var contact models.Contact
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&contact).Error; err != nil {
		return nil, translateError(err, "contact", id)
	}
	return &contact, nil
}

func (r *Repository) UpdateContactStatus(ctx context.Context, id string, status models.ContactStatus) error {
	result := r.db.WithContext(ctx).Model(&models.Contact{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return translateError(result.Error, "contact", id)
	}
	if result.RowsAffected == 0 {
		return inventory.NewNotFound("contact", id)
	}
	return nil
}

// CreateReview relies on the products foreign key to reject unknown products
func (r *Repository) CreateReview(ctx context.Context, review *models.Review) error {
	if review.ID == "" {
		review.ID = uuid.NewString()
	}
	return translateError(r.db.WithContext(ctx).Omit("Product").Create(review).Error, "product", review.ProductID)
}

func (r *Repository) Reviews(ctx context.Context, productID string) ([]models.Review, error) {
	var reviews []models.Review
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at DESC").
		Find(&reviews).Error
	return reviews, translateError(err, "review", "")
}
