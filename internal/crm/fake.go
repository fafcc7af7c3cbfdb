package crm

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// FakeClient is an in-memory Client for coordinator and resolver
// tests, avoiding any network dependency. It supports the subset of
// search filtering the engine actually issues: equality on
// PropertyName.
type FakeClient struct {
	mu      sync.Mutex
	objects map[ObjectType]map[string]Object
	assocs  map[string][]AssociationSpec
}

func NewFakeClient() *FakeClient {
	return &FakeClient{
		objects: make(map[ObjectType]map[string]Object),
		assocs:  make(map[string][]AssociationSpec),
	}
}

func (f *FakeClient) Seed(objectType ObjectType, obj Object) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects[objectType] == nil {
		f.objects[objectType] = make(map[string]Object)
	}
	f.objects[objectType][obj.ID] = obj
}

func (f *FakeClient) Get(_ context.Context, objectType ObjectType, id string) (Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[objectType][id]
	if !ok {
		return Object{}, ErrNotFound
	}
	return obj, nil
}

func (f *FakeClient) Create(_ context.Context, objectType ObjectType, properties map[string]string) (Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj := Object{ID: uuid.NewString(), Properties: cloneProps(properties)}
	if f.objects[objectType] == nil {
		f.objects[objectType] = make(map[string]Object)
	}
	f.objects[objectType][obj.ID] = obj
	return obj, nil
}

func (f *FakeClient) Update(_ context.Context, objectType ObjectType, id string, properties map[string]string) (Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[objectType][id]
	if !ok {
		return Object{}, ErrNotFound
	}
	if obj.Properties == nil {
		obj.Properties = make(map[string]string)
	}
	for k, v := range properties {
		obj.Properties[k] = v
	}
	f.objects[objectType][id] = obj
	return obj, nil
}

func (f *FakeClient) Delete(_ context.Context, objectType ObjectType, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[objectType][id]; !ok {
		return ErrNotFound
	}
	delete(f.objects[objectType], id)
	return nil
}

func (f *FakeClient) Search(_ context.Context, req SearchRequest) (SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []Object
	for _, obj := range f.objects[req.ObjectType] {
		if matchesFilters(obj, req.Filters) {
			matched = append(matched, obj)
		}
	}
	if req.Limit > 0 && len(matched) > req.Limit {
		matched = matched[:req.Limit]
	}
	return SearchResult{Objects: matched, Total: len(matched)}, nil
}

func matchesFilters(obj Object, filters []SearchFilter) bool {
	for _, f := range filters {
		val := obj.Prop(f.PropertyName)
		switch f.Operator {
		case "EQ", "":
			if val != f.Value {
				return false
			}
		case "NEQ":
			if val == f.Value {
				return false
			}
		default:
			// GTE/LTE on string-encoded values is out of scope for the fake.
		}
	}
	return true
}

func (f *FakeClient) BatchRead(_ context.Context, objectType ObjectType, ids []string) ([]Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	results := make([]Object, 0, len(ids))
	for _, id := range ids {
		if obj, ok := f.objects[objectType][id]; ok {
			results = append(results, obj)
		}
	}
	return results, nil
}

func (f *FakeClient) BatchUpdate(_ context.Context, objectType ObjectType, updates map[string]map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, props := range updates {
		obj, ok := f.objects[objectType][id]
		if !ok {
			continue
		}
		for k, v := range props {
			obj.Properties[k] = v
		}
		f.objects[objectType][id] = obj
	}
	return nil
}

func (f *FakeClient) Associate(_ context.Context, spec AssociationSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := string(spec.FromType) + ":" + spec.FromID
	f.assocs[key] = append(f.assocs[key], spec)
	return nil
}

func (f *FakeClient) Disassociate(_ context.Context, spec AssociationSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := string(spec.FromType) + ":" + spec.FromID
	remaining := f.assocs[key][:0]
	for _, a := range f.assocs[key] {
		if a.ToType != spec.ToType || a.ToID != spec.ToID {
			remaining = append(remaining, a)
		}
	}
	f.assocs[key] = remaining
	return nil
}

func cloneProps(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
