// Package recon holds the operator-facing reconciliation queue.
//
// A settlement lands here only when compensation itself failed: some steps
// committed, some compensating deltas did not apply, and the ledgers disagree
// with each other. Items are durable (Badger) and stay until an operator
// resolves them by hand; nothing in this package retries the failed deltas.
package recon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/tradesim/settle/internal/settlement"
)

const keyPrefix = "recon/"

// ErrItemNotFound is returned when resolving an unknown or already removed item.
var ErrItemNotFound = errors.New("recon: item not found")

// Item is one stuck settlement awaiting manual reconciliation.
type Item struct {
	ID         string                 `json:"id"`
	Stuck      settlement.StuckRecord `json:"stuck"`
	ResolvedAt *time.Time             `json:"resolved_at,omitempty"`
	ResolvedBy string                 `json:"resolved_by,omitempty"`
	Note       string                 `json:"note,omitempty"`
}

// Resolved reports whether an operator has closed the item.
func (it *Item) Resolved() bool {
	return it.ResolvedAt != nil
}

// Queue is a durable reconciliation queue backed by Badger.
type Queue struct {
	db *badger.DB
}

// Open opens (and creates if needed) the queue database at dir.
func Open(dir string) (*Queue, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("recon: dir is required")
	}
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open recon db: %w", err)
	}
	return &Queue{db: db}, nil
}

func (q *Queue) Close() error {
	if q == nil || q.db == nil {
		return nil
	}
	return q.db.Close()
}

// Enqueue stores a stuck settlement. Implements settlement.ReconSink.
func (q *Queue) Enqueue(ctx context.Context, rec settlement.StuckRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	item := Item{ID: uuid.NewString(), Stuck: rec}
	val, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal recon item: %w", err)
	}
	err = q.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+item.ID), val)
	})
	if err != nil {
		return fmt.Errorf("store recon item: %w", err)
	}
	return nil
}

// List returns queue items, oldest first. Resolved items are included only
// when includeResolved is set.
func (q *Queue) List(ctx context.Context, includeResolved bool) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var items []Item
	err := q.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var item Item
				if err := json.Unmarshal(val, &item); err != nil {
					return fmt.Errorf("decode recon item: %w", err)
				}
				if item.Resolved() && !includeResolved {
					return nil
				}
				items = append(items, item)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Stuck.CreatedAt.Before(items[j].Stuck.CreatedAt)
	})
	return items, nil
}

// Get returns a single item by ID.
func (q *Queue) Get(ctx context.Context, id string) (*Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var item Item
	err := q.db.View(func(txn *badger.Txn) error {
		entry, err := txn.Get([]byte(keyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrItemNotFound
		}
		if err != nil {
			return err
		}
		return entry.Value(func(val []byte) error {
			return json.Unmarshal(val, &item)
		})
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Resolve marks an item as handled by an operator. The item stays in the
// store as an audit trail; it just stops showing up in the default listing.
func (q *Queue) Resolve(ctx context.Context, id, operator, note string) (*Item, error) {
	item, err := q.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Resolved() {
		return item, nil // resolving twice is a no-op
	}
	now := time.Now().UTC()
	item.ResolvedAt = &now
	item.ResolvedBy = operator
	item.Note = note

	val, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("marshal recon item: %w", err)
	}
	err = q.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+id), val)
	})
	if err != nil {
		return nil, fmt.Errorf("update recon item: %w", err)
	}
	return item, nil
}

// PendingCount returns the number of unresolved items.
func (q *Queue) PendingCount(ctx context.Context) (int, error) {
	items, err := q.List(ctx, false)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}
