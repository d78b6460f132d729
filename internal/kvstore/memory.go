package kvstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process Store. Every operation runs under one mutex, which gives
// conditional writes the same atomicity the postgres driver gets from row locks.
type Memory struct {
	mu    sync.RWMutex
	items map[Key]Item
}

func NewMemory() *Memory {
	return &Memory{items: make(map[Key]Item)}
}

func (m *Memory) PutIfAbsent(ctx context.Context, item Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.items[item.Key]; exists {
		return ErrConditionFailed
	}
	m.items[item.Key] = cloneItem(item)
	return nil
}

func (m *Memory) Put(ctx context.Context, item Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items[item.Key] = cloneItem(item)
	return nil
}

func (m *Memory) Get(ctx context.Context, key Key) (Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.items[key]
	if !ok {
		return Item{}, ErrNotFound
	}
	return cloneItem(item), nil
}

func (m *Memory) QueryByPrefix(ctx context.Context, pk string, skPrefix string, opts QueryOptions) ([]Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Item
	for key, item := range m.items {
		if key.PK != pk || !strings.HasPrefix(key.SK, skPrefix) {
			continue
		}
		if opts.StartSK != "" && key.SK < opts.StartSK {
			continue
		}
		out = append(out, cloneItem(item))
	}

	sort.Slice(out, func(i, j int) bool {
		if opts.Descending {
			return out[i].SK > out[j].SK
		}
		return out[i].SK < out[j].SK
	})
	return truncate(out, opts.Limit), nil
}

func (m *Memory) QueryByIndex(ctx context.Context, indexPK string, indexSK string, limit int) ([]Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Item
	for _, item := range m.items {
		if item.IndexPK == indexPK && item.IndexSK == indexSK {
			out = append(out, cloneItem(item))
		}
	}
	sortByKey(out)
	return truncate(out, limit), nil
}

func (m *Memory) ScanIndex(ctx context.Context, indexSK string, opts ScanOptions) ([]Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Item
	for _, item := range m.items {
		if item.IndexPK == "" || item.IndexSK != indexSK {
			continue
		}
		if opts.After.PK != "" && !keyLess(opts.After, item.Key) {
			continue
		}
		out = append(out, cloneItem(item))
	}
	sortByKey(out)
	return truncate(out, opts.Limit), nil
}

func (m *Memory) Update(ctx context.Context, key Key, update Update) (Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[key]
	if !ok {
		return Item{}, ErrNotFound
	}

	attrs := map[string]any{}
	if len(item.Data) > 0 {
		if err := json.Unmarshal(item.Data, &attrs); err != nil {
			return Item{}, fmt.Errorf("decode item: %w", err)
		}
	}

	for _, cond := range update.Conditions {
		current, _ := attrs[cond.Attr].(string)
		if current != cond.Equals {
			return Item{}, ErrConditionFailed
		}
	}

	for attr, value := range update.Set {
		encoded, err := json.Marshal(value)
		if err != nil {
			return Item{}, fmt.Errorf("encode %s: %w", attr, err)
		}
		var decoded any
		if err := json.Unmarshal(encoded, &decoded); err != nil {
			return Item{}, fmt.Errorf("encode %s: %w", attr, err)
		}
		attrs[attr] = decoded
	}

	data, err := json.Marshal(attrs)
	if err != nil {
		return Item{}, fmt.Errorf("encode item: %w", err)
	}
	item.Data = data
	if update.IndexSK != nil {
		item.IndexSK = *update.IndexSK
	}

	m.items[key] = item
	return cloneItem(item), nil
}

func (m *Memory) Delete(ctx context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.items, key)
	return nil
}

func cloneItem(item Item) Item {
	item.Data = bytes.Clone(item.Data)
	return item
}

func keyLess(a, b Key) bool {
	if a.PK != b.PK {
		return a.PK < b.PK
	}
	return a.SK < b.SK
}

func sortByKey(items []Item) {
	sort.Slice(items, func(i, j int) bool {
		return keyLess(items[i].Key, items[j].Key)
	})
}

func truncate(items []Item, limit int) []Item {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
