package kvstore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/ribon-matchalatte/backend/inventory"
	"github.com/ribon-matchalatte/backend/repository/models"
)

// Contacts

func (s *Store) CreateContact(_ context.Context, contact *models.Contact) error {
	if contact.ID == "" {
		contact.ID = uuid.NewString()
	}
	if contact.Status == "" {
		contact.Status = models.ContactNew
	}
	now := s.now()
	contact.CreatedAt = now
	contact.UpdatedAt = now
	return s.update(func(txn *badger.Txn) error {
		return setJSON(txn, prefixContact+contact.ID, contact)
	})
}

func (s *Store) ListContacts(_ context.Context, status models.ContactStatus) ([]models.Contact, error) {
	var contacts []models.Contact
	err := s.view(func(txn *badger.Txn) error {
		all, err := scanJSON[models.Contact](txn, prefixContact)
		if err != nil {
			return err
		}
		for _, contact := range all {
			if status == "" || contact.Status == status {
				contacts = append(contacts, contact)
			}
		}
		return nil
	})
	sort.SliceStable(contacts, func(i, j int) bool {
		return contacts[i].CreatedAt.After(contacts[j].CreatedAt)
	})
	return contacts, err
}

func (s *Store) Contact(_ context.Context, id string) (*models.Contact, error) {
	var contact models.Contact
	err := s.view(func(txn *badger.Txn) error {
		return getContact(txn, id, &contact)
	})
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

func getContact(txn *badger.Txn, id string, contact *models.Contact) error {
	err := getJSON(txn, prefixContact+id, contact)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return inventory.NewNotFound("contact", id)
	}
	return err
}

func (s *Store) UpdateContactStatus(_ context.Context, id string, status models.ContactStatus) error {
	return s.update(func(txn *badger.Txn) error {
		var contact models.Contact
		if err := getContact(txn, id, &contact); err != nil {
			return err
		}
		contact.Status = status
		contact.UpdatedAt = s.now()
		return setJSON(txn, prefixContact+id, &contact)
	})
}

// Reviews

func (s *Store) CreateReview(_ context.Context, review *models.Review) error {
	if review.ID == "" {
		review.ID = uuid.NewString()
	}
	review.CreatedAt = s.now()
	return s.update(func(txn *badger.Txn) error {
		ok, err := exists(txn, prefixProduct+review.ProductID)
		if err != nil {
			return err
		}
		if !ok {
			return inventory.NewNotFound("product", review.ProductID)
		}
		return setJSON(txn, reviewKey(review), review)
	})
}

// Reviews returns a product's reviews, newest first
func (s *Store) Reviews(_ context.Context, productID string) ([]models.Review, error) {
	var reviews []models.Review
	err := s.view(func(txn *badger.Txn) error {
		var err error
		reviews, err = scanJSON[models.Review](txn, prefixReview+productID+":")
		return err
	})
	for i, j := 0, len(reviews)-1; i < j; i, j = i+1, j-1 {
		reviews[i], reviews[j] = reviews[j], reviews[i]
	}
	return reviews, err
}

func reviewKey(r *models.Review) string {
	return fmt.Sprintf("%s%s:%019d:%s", prefixReview, r.ProductID, r.CreatedAt.UnixNano(), r.ID)
}

// deletePrefix removes every key under prefix
func deletePrefix(txn *badger.Txn, prefix string) error {
	var keys []string
	err := scan(txn, prefix, true, func(key string, _ []byte) error {
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := txn.Delete([]byte(key)); err != nil {
			return err
		}
	}
	return nil
}
