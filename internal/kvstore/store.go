// Package kvstore is a partition-key/sort-key item store with one secondary index.
//
// Items carry their attributes as a JSON object. Sort keys compare bytewise, so callers
// that need numeric ordering must zero-pad.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	ErrNotFound        = errors.New("kvstore: item not found")
	ErrConditionFailed = errors.New("kvstore: condition failed")
)

type Key struct {
	PK string
	SK string
}

type Item struct {
	Key
	IndexPK string
	IndexSK string
	Data    json.RawMessage
}

// Condition requires the string attribute Attr to currently equal Equals.
type Condition struct {
	Attr   string
	Equals string
}

// Update merges Set into the item's top-level attributes. IndexSK, when non-nil,
// rewrites the secondary index sort key in the same write.
type Update struct {
	Set        map[string]any
	IndexSK    *string
	Conditions []Condition
}

type QueryOptions struct {
	Descending bool
	Limit      int
	// StartSK is an inclusive lower bound on the sort key.
	StartSK string
}

// ScanOptions pages through an index scan in (pk, sk) order. After, when set, is the key
// of the last item of the previous page and is excluded.
type ScanOptions struct {
	After Key
	Limit int
}

type Store interface {
	PutIfAbsent(ctx context.Context, item Item) error
	Put(ctx context.Context, item Item) error
	Get(ctx context.Context, key Key) (Item, error)
	QueryByPrefix(ctx context.Context, pk string, skPrefix string, opts QueryOptions) ([]Item, error)
	QueryByIndex(ctx context.Context, indexPK string, indexSK string, limit int) ([]Item, error)
	// ScanIndex lists items whose index sort key equals indexSK, across all index partitions.
	ScanIndex(ctx context.Context, indexSK string, opts ScanOptions) ([]Item, error)
	Update(ctx context.Context, key Key, update Update) (Item, error)
	Delete(ctx context.Context, key Key) error
}

// Decode unmarshals the item's attributes into out.
func (i Item) Decode(out any) error {
	return json.Unmarshal(i.Data, out)
}

// NewItem marshals record as the item's attributes.
func NewItem(key Key, record any) (Item, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return Item{}, err
	}
	return Item{Key: key, Data: data}, nil
}
