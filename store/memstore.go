package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemStore is an in-process Substrate used by tests and local development.
// Every item carries its primary "PK"/"SK" attributes plus, for whichever
// secondary indexes it participates in, "<Index>PK"/"<Index>SK" attributes
// that metadata.go derives at write time — mirroring how a real DynamoDB
// table projects GSI key attributes from the base item.
type MemStore struct {
	mu    sync.RWMutex
	items map[Key]Item
}

// NewMemStore allocates an empty in-memory substrate.
func NewMemStore() *MemStore {
	return &MemStore{items: make(map[Key]Item)}
}

func keyOf(it Item) Key {
	pk, _ := it["PK"].(string)
	sk, _ := it["SK"].(string)
	return Key{PK: pk, SK: sk}
}

func cloneItem(it Item) Item {
	out := make(Item, len(it))
	for k, v := range it {
		out[k] = v
	}
	return out
}

func (m *MemStore) GetItem(ctx context.Context, key Key) (Item, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[key]
	if !ok {
		return nil, false, nil
	}
	return cloneItem(it), true, nil
}

func (m *MemStore) Query(ctx context.Context, in QueryInput) (QueryOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pkAttr, skAttr := indexAttrs(in.Index)

	var matches []Item
	for _, it := range m.items {
		pk, _ := it[pkAttr].(string)
		if pk != in.PK {
			continue
		}
		sk, _ := it[skAttr].(string)
		if in.SKBeginsWith != "" && !strings.HasPrefix(sk, in.SKBeginsWith) {
			continue
		}
		if in.SKBetween != nil && (sk < in.SKBetween.From || sk > in.SKBetween.To) {
			continue
		}
		matches = append(matches, cloneItem(it))
	}

	sort.Slice(matches, func(i, j int) bool {
		si, _ := matches[i][skAttr].(string)
		sj, _ := matches[j][skAttr].(string)
		if in.ScanIndexForward {
			return si < sj
		}
		return si > sj
	})

	if in.ExclusiveStartKey != nil {
		startSK := in.ExclusiveStartKey["SK"]
		idx := 0
		for i, it := range matches {
			sk, _ := it[skAttr].(string)
			if in.ScanIndexForward {
				if sk > startSK {
					idx = i
					break
				}
			} else if sk < startSK {
				idx = i
				break
			}
			idx = i + 1
		}
		matches = matches[idx:]
	}

	out := QueryOutput{}
	if in.Limit > 0 && len(matches) > in.Limit {
		out.Items = matches[:in.Limit]
		lastSK, _ := out.Items[len(out.Items)-1][skAttr].(string)
		out.LastEvaluatedKey = map[string]string{"SK": lastSK}
	} else {
		out.Items = matches
	}
	return out, nil
}

func indexAttrs(idx Index) (pkAttr, skAttr string) {
	if idx == PrimaryIndex {
		return "PK", "SK"
	}
	return string(idx) + "PK", string(idx) + "SK"
}

func (m *MemStore) TransactWrite(ctx context.Context, ops []TransactWriteOp) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Validate every condition before applying any mutation, so the
	// transaction never partially succeeds.
	for i, op := range ops {
		if op.Condition == nil {
			continue
		}
		var existing Item
		var exists bool
		switch {
		case op.Put != nil:
			existing, exists = m.items[keyOf(*op.Put)]
		case op.Delete != nil:
			existing, exists = m.items[*op.Delete]
		}
		if !evalCondition(*op.Condition, existing, exists) {
			return &ErrConditionFailed{Index: i}
		}
	}

	for _, op := range ops {
		switch {
		case op.Put != nil:
			m.items[keyOf(*op.Put)] = cloneItem(*op.Put)
		case op.Delete != nil:
			delete(m.items, *op.Delete)
		}
	}
	return nil
}

func evalCondition(c Condition, existing Item, exists bool) bool {
	switch c.Op {
	case CondAttributeNotExists:
		if !exists {
			return true
		}
		_, has := existing[c.Attribute]
		return !has
	case CondAttributeExists:
		if !exists {
			return false
		}
		_, has := existing[c.Attribute]
		return has
	case CondAttributeEquals:
		if !exists || len(c.Values) != 1 {
			return false
		}
		v, _ := existing[c.Attribute].(string)
		return v == c.Values[0]
	case CondAttributeIn:
		if !exists {
			return false
		}
		v, _ := existing[c.Attribute].(string)
		for _, want := range c.Values {
			if v == want {
				return true
			}
		}
		return false
	default:
		return true
	}
}
