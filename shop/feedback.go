package shop

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/ribon-matchalatte/backend/repository/models"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

type ContactInput struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

func (in ContactInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return newValidationError("name is required")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return newValidationError(fmt.Sprintf("invalid email %q", in.Email))
	}
	if strings.TrimSpace(in.Message) == "" {
		return newValidationError("message is required")
	}
	return nil
}

// SubmitContact stores a contact form message as new
func (s *Service) SubmitContact(ctx context.Context, in ContactInput) (*models.Contact, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	contact := &models.Contact{
		Name:    strings.TrimSpace(in.Name),
		Email:   strings.TrimSpace(in.Email),
		Message: strings.TrimSpace(in.Message),
		Status:  models.ContactNew,
	}
	if err := s.store.CreateContact(ctx, contact); err != nil {
		return nil, err
	}
	s.logger.Info("Contact message received", "contact_id", contact.ID)
	return contact, nil
}

func (s *Service) ListContacts(ctx context.Context, status models.ContactStatus) ([]models.Contact, error) {
	if status != "" && !status.Valid() {
		return nil, newValidationError(fmt.Sprintf("unknown contact status %q", status))
	}
	return s.store.ListContacts(ctx, status)
}

func (s *Service) UpdateContactStatus(ctx context.Context, id string, status models.ContactStatus) (*models.Contact, error) {
	if !status.Valid() {
		return nil, newValidationError(fmt.Sprintf("unknown contact status %q", status))
	}
	if err := s.store.UpdateContactStatus(ctx, id, status); err != nil {
		return nil, err
	}
	return s.store.Contact(ctx, id)
}

// ReviewInput is submitted by a signed-in customer
type ReviewInput struct {
	UserID  string `json:"user_id"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// ProductReviews is a product's reviews with their average rating
type ProductReviews struct {
	ProductID string          `json:"product_id"`
	Count     int             `json:"count"`
	Average   decimal.Decimal `json:"average_rating"`
	Reviews   []models.Review `json:"reviews"`
}

func (s *Service) AddReview(ctx context.Context, productID string, in ReviewInput) (*models.Review, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return nil, newValidationError("user_id is required, sign in to review")
	}
	if in.Rating < 1 || in.Rating > 5 {
		return nil, newValidationError("rating must be between 1 and 5")
	}
	review := &models.Review{
		ProductID: productID,
		UserID:    strings.TrimSpace(in.UserID),
		Rating:    in.Rating,
		Comment:   strings.TrimSpace(in.Comment),
	}
	if err := s.store.CreateReview(ctx, review); err != nil {
		return nil, err
	}
	return review, nil
}

// Reviews returns the product's reviews newest first. The average is rounded to
// one decimal place and is zero without reviews.
func (s *Service) Reviews(ctx context.Context, productID string) (*ProductReviews, error) {
	if _, err := s.store.Product(ctx, productID); err != nil {
		return nil, err
	}
	reviews, err := s.store.Reviews(ctx, productID)
	if err != nil {
		return nil, err
	}
	out := &ProductReviews{
		ProductID: productID,
		Count:     len(reviews),
		Average:   decimal.Zero,
		Reviews:   reviews,
	}
	if out.Reviews == nil {
		out.Reviews = []models.Review{}
	}
	if len(reviews) > 0 {
		total := lo.SumBy(reviews, func(r models.Review) int { return r.Rating })
		out.Average = decimal.NewFromInt(int64(total)).
			Div(decimal.NewFromInt(int64(len(reviews)))).
			Round(1)
	}
	return out, nil
}
