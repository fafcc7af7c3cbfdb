// Package crm implements the collaborator that talks to the
// CRM-of-record: generic object CRUD, search, batch read/update, and
// association endpoints. Transport, auth, retry/backoff, and
// rate-limiting are entirely this package's concern; callers never
// see an HTTP status code, only a typed error.
package crm

import (
	"context"
)

// ObjectType identifies one of the four CRM object types the engine
// cares about. The CRM assigns each an opaque type id at the
// transport layer; this package hides that behind a name.
type ObjectType string

const (
	ObjectContact ObjectType = "contact"
	ObjectSession ObjectType = "mock_exam"
	ObjectBooking ObjectType = "booking"
)

// Object is a generic property bag read from or written to the CRM.
// Unknown/unmodeled properties round-trip through Extra rather than
// being dropped, since the CRM schema can carry fields this engine
// does not otherwise model.
type Object struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
	Extra      map[string]string `json:"-"`
}

// Prop is a small helper for reading a named property, returning ""
// for a missing key rather than requiring a comma-ok check at every
// call site.
func (o Object) Prop(name string) string {
	if o.Properties == nil {
		return ""
	}
	return o.Properties[name]
}

// SearchFilter is a single equality/range constraint in a search
// request. Operator is one of "EQ", "GTE", "LTE", "NEQ".
type SearchFilter struct {
	PropertyName string
	Operator     string
	Value        string
}

// SearchRequest describes a CRM search call with optional pagination.
type SearchRequest struct {
	ObjectType ObjectType
	Filters    []SearchFilter
	SortBy     string
	SortDesc   bool
	Limit      int
	After      string // opaque pagination cursor
}

// SearchResult is one page of a search response.
type SearchResult struct {
	Objects []Object
	After   string // non-empty when more pages are available
	Total   int
}

// AssociationSpec links two objects by id, e.g. a booking to its
// session and its contact.
type AssociationSpec struct {
	FromType ObjectType
	FromID   string
	ToType   ObjectType
	ToID     string
	Label    string
}

// Client is the full surface the engine drives against the
// CRM-of-record. Every method already has retry/backoff/rate-limiting
// applied by the implementation; callers treat each call as a single
// atomic attempt.
type Client interface {
	Get(ctx context.Context, objectType ObjectType, id string) (Object, error)
	Create(ctx context.Context, objectType ObjectType, properties map[string]string) (Object, error)
	Update(ctx context.Context, objectType ObjectType, id string, properties map[string]string) (Object, error)
	Delete(ctx context.Context, objectType ObjectType, id string) error
	Search(ctx context.Context, req SearchRequest) (SearchResult, error)
	BatchRead(ctx context.Context, objectType ObjectType, ids []string) ([]Object, error)
	BatchUpdate(ctx context.Context, objectType ObjectType, updates map[string]map[string]string) error
	Associate(ctx context.Context, spec AssociationSpec) error
	Disassociate(ctx context.Context, spec AssociationSpec) error
}
