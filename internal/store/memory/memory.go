// Package memory provides an in-memory store.Store used by tests and the
// single-process serve mode. Filters and ordering are evaluated against the
// documents' json-tagged fields.
package memory

import (
	"context"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dhumphrey11/moda-trading/internal/core"
	"github.com/dhumphrey11/moda-trading/internal/store"
)

// Store is a mutex-guarded in-memory document store.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]any
	order       map[string][]string // insertion order per collection
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		collections: make(map[string]map[string]any),
		order:       make(map[string][]string),
	}
}

func (s *Store) put(collection, id string, doc any, mustExist, mustNotExist bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, ok := s.collections[collection]
	if !ok {
		docs = make(map[string]any)
		s.collections[collection] = docs
	}

	_, exists := docs[id]
	if mustExist && !exists {
		return core.ErrNotFound
	}
	if mustNotExist && exists {
		return core.WrapError(core.ErrStoreFailed, nil)
	}

	if !exists {
		s.order[collection] = append(s.order[collection], id)
	}
	docs[id] = deref(doc)
	return nil
}

// Create stores a new document; it fails if the id already exists.
func (s *Store) Create(ctx context.Context, collection, id string, doc any) error {
	return s.put(collection, id, doc, false, true)
}

// Update overwrites an existing document; it fails if the id is absent.
func (s *Store) Update(ctx context.Context, collection, id string, doc any) error {
	return s.put(collection, id, doc, true, false)
}

// Upsert stores a document regardless of prior existence.
func (s *Store) Upsert(ctx context.Context, collection, id string, doc any) error {
	return s.put(collection, id, doc, false, false)
}

// Get decodes the document with the given id into out, a pointer to a
// document struct. The stored id is injected into an empty "id" field.
func (s *Store) Get(ctx context.Context, collection, id string, out any) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs, ok := s.collections[collection]
	if !ok {
		return core.ErrNotFound
	}
	doc, ok := docs[id]
	if !ok {
		return core.ErrNotFound
	}

	dst := reflect.ValueOf(out)
	if dst.Kind() != reflect.Ptr || dst.IsNil() {
		return core.WrapError(core.ErrStoreFailed, nil)
	}
	v := reflect.ValueOf(doc)
	if !v.Type().AssignableTo(dst.Elem().Type()) {
		return core.WrapError(core.ErrStoreFailed, nil)
	}
	dst.Elem().Set(v)
	setDocID(dst.Elem(), id)
	return nil
}

// Delete removes a document. Deleting an absent document is not an error,
// matching the gateway's at-least-once semantics.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, ok := s.collections[collection]
	if !ok {
		return nil
	}
	if _, exists := docs[id]; !exists {
		return nil
	}
	delete(docs, id)
	ids := s.order[collection]
	for i, existing := range ids {
		if existing == id {
			s.order[collection] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

// Query decodes matching documents into out, a pointer to a slice of
// document structs. Without OrderBy, insertion order is preserved.
func (s *Store) Query(ctx context.Context, collection string, q store.Query, out any) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dst := reflect.ValueOf(out)
	if dst.Kind() != reflect.Ptr || dst.Elem().Kind() != reflect.Slice {
		return core.WrapError(core.ErrStoreFailed, nil)
	}
	elemType := dst.Elem().Type().Elem()

	type entry struct {
		id  string
		doc reflect.Value
	}
	var matched []entry

	for _, id := range s.order[collection] {
		doc := reflect.ValueOf(s.collections[collection][id])
		if !doc.Type().AssignableTo(elemType) {
			continue
		}
		ok := true
		for _, f := range q.Filters {
			if !matches(doc, f) {
				ok = false
				break
			}
		}
		if ok {
			matched = append(matched, entry{id: id, doc: doc})
		}
	}

	if q.OrderBy != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			a, aok := fieldByTag(matched[i].doc, q.OrderBy)
			b, bok := fieldByTag(matched[j].doc, q.OrderBy)
			if !aok || !bok {
				return false
			}
			c, ok := compare(a.Interface(), b.Interface())
			if !ok {
				return false
			}
			if q.Desc {
				return c > 0
			}
			return c < 0
		})
	}

	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	result := reflect.MakeSlice(dst.Elem().Type(), 0, len(matched))
	for _, m := range matched {
		elem := reflect.New(elemType).Elem()
		elem.Set(m.doc)
		setDocID(elem, m.id)
		result = reflect.Append(result, elem)
	}
	dst.Elem().Set(result)
	return nil
}

func deref(doc any) any {
	v := reflect.ValueOf(doc)
	if v.Kind() == reflect.Ptr && !v.IsNil() {
		return v.Elem().Interface()
	}
	return doc
}

// setDocID writes id into a string struct field tagged `json:"id"` when
// the field is currently empty.
func setDocID(v reflect.Value, id string) {
	if v.Kind() != reflect.Struct {
		return
	}
	f, ok := fieldByTagSettable(v, "id")
	if ok && f.Kind() == reflect.String && f.String() == "" && f.CanSet() {
		f.SetString(id)
	}
}

func fieldByTag(v reflect.Value, tag string) (reflect.Value, bool) {
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, false
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		name := strings.Split(t.Field(i).Tag.Get("json"), ",")[0]
		if name == tag {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func fieldByTagSettable(v reflect.Value, tag string) (reflect.Value, bool) {
	return fieldByTag(v, tag)
}

func matches(doc reflect.Value, f store.Filter) bool {
	field, ok := fieldByTag(doc, f.Field)
	if !ok {
		return false
	}
	fv := field
	if fv.Kind() == reflect.Ptr {
		if fv.IsNil() {
			return false
		}
		fv = fv.Elem()
	}

	c, ok := compare(fv.Interface(), f.Value)
	if !ok {
		if f.Op == store.OpEq {
			return reflect.DeepEqual(fv.Interface(), f.Value)
		}
		return false
	}

	switch f.Op {
	case store.OpEq:
		return c == 0
	case store.OpLt:
		return c < 0
	case store.OpLte:
		return c <= 0
	case store.OpGt:
		return c > 0
	case store.OpGte:
		return c >= 0
	default:
		return false
	}
}

// compare orders two values of a supported kind: strings, numerics,
// time.Time and decimal.Decimal.
func compare(a, b any) (int, bool) {
	switch av := a.(type) {
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		switch {
		case av.Before(bv):
			return -1, true
		case av.After(bv):
			return 1, true
		default:
			return 0, true
		}
	case decimal.Decimal:
		switch bv := b.(type) {
		case decimal.Decimal:
			return av.Cmp(bv), true
		case int:
			return av.Cmp(decimal.NewFromInt(int64(bv))), true
		case int64:
			return av.Cmp(decimal.NewFromInt(bv)), true
		case float64:
			return av.Cmp(decimal.NewFromFloat(bv)), true
		}
		return 0, false
	}

	if as, ok := toString(a); ok {
		bs, ok := toString(b)
		if !ok {
			return 0, false
		}
		return strings.Compare(as, bs), true
	}
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
	return 0, false
}

func toString(v any) (string, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.String {
		return rv.String(), true
	}
	return "", false
}

func toFloat(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}
