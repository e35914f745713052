// Package kvstore is an embedded Badger implementation of the storefront storage.
// It backs single-node deployments and the test suites; Badger's optimistic
// transactions give the same all-or-nothing and conflict semantics as the
// PostgreSQL repository.
package kvstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ribon-matchalatte/backend/inventory"
)

// Key prefixes
const (
	prefixIngredient         = "ingredient:"
	prefixProduct            = "product:"
	prefixCategory           = "category:"
	prefixCategoryName       = "category-name:"
	prefixRecipe             = "recipe:"               // recipe:<product>:<ingredient>
	prefixRecipeByIngredient = "recipe-by-ingredient:" // recipe-by-ingredient:<ingredient>:<product>
	prefixOrder              = "order:"
	prefixOrderByPhone       = "order-by-phone:"   // order-by-phone:<phone>:<order>
	prefixOrderByProduct     = "order-by-product:" // order-by-product:<product>:<order>
	prefixMovement           = "movement:"         // movement:<ingredient>:<unix nanos>:<id>
	prefixContact            = "contact:"
	prefixReview             = "review:" // review:<product>:<unix nanos>:<id>
)

// Store keeps every storefront record as JSON under a typed key prefix
type Store struct {
	db  *badger.DB
	now func() time.Time
}

// Open opens a Badger database at path. An empty path opens an in-memory database.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %q: %w", path, err)
	}
	return New(db), nil
}

// New wraps an already opened database
func New(db *badger.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) view(fn func(txn *badger.Txn) error) error {
	return translate(s.db.View(fn))
}

func (s *Store) update(fn func(txn *badger.Txn) error) error {
	return translate(s.db.Update(fn))
}

// translate maps a lost optimistic transaction to inventory.ErrConflict
func translate(err error) error {
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: %v", inventory.ErrConflict, err)
	}
	return err
}

func getJSON(txn *badger.Txn, key string, v any) error {
	item, err := txn.Get([]byte(key))
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return txn.Set([]byte(key), data)
}

func exists(txn *badger.Txn, key string) (bool, error) {
	_, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

// scan calls fn for every key under prefix, in key order
func scan(txn *badger.Txn, prefix string, keysOnly bool, fn func(key string, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	opts.PrefetchValues = !keysOnly
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		key := string(item.KeyCopy(nil))
		var val []byte
		if !keysOnly {
			var err error
			if val, err = item.ValueCopy(nil); err != nil {
				return err
			}
		}
		if err := fn(key, val); err != nil {
			return err
		}
	}
	return nil
}

// scanJSON decodes every value under prefix into a fresh T
func scanJSON[T any](txn *badger.Txn, prefix string) ([]T, error) {
	var out []T
	err := scan(txn, prefix, false, func(_ string, val []byte) error {
		var v T
		if err := json.Unmarshal(val, &v); err != nil {
			return err
		}
		out = append(out, v)
		return nil
	})
	return out, err
}

// lastSegment returns the part of a composite key after its final ':'
func lastSegment(key string) string {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == ':' {
			return key[i+1:]
		}
	}
	return key
}
