// Package query holds the compiled representation of a collection request.
//
// Everything here is plain data produced by the compiler and consumed once by
// the executor; nothing in this package performs I/O.
package query

import (
	"go.mongodb.org/mongo-driver/bson"
)

// CollectionRef names the target collection. It is only constructed by the
// compiler after validation.
type CollectionRef string

// String returns the collection name.
func (c CollectionRef) String() string {
	return string(c)
}

// Direction is a sort direction.
type Direction int

const (
	Ascending  Direction = 1
	Descending Direction = -1
)

// String returns "asc" or "desc".
func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// SortKey is one (field, direction) pair.
type SortKey struct {
	Field     string
	Direction Direction
}

// SortSpec is an ordered list of sort keys; the first key is the primary one.
// An empty SortSpec leaves ordering to the backend, which is unspecified.
type SortSpec []SortKey

// IsEmpty reports whether no order was requested.
func (s SortSpec) IsEmpty() bool {
	return len(s) == 0
}

// ToBSON returns the sort document, or nil when empty.
func (s SortSpec) ToBSON() bson.D {
	if len(s) == 0 {
		return nil
	}
	doc := make(bson.D, 0, len(s))
	for _, k := range s {
		doc = append(doc, bson.E{Key: k.Field, Value: int(k.Direction)})
	}
	return doc
}

// ProjectionMode tells whether a projection lists fields to keep or to drop.
type ProjectionMode int

const (
	ProjectionAll ProjectionMode = iota
	ProjectionInclude
	ProjectionExclude
)

// ProjectionSpec selects document fields. Include and exclude are never mixed,
// except that an include projection may drop _id.
type ProjectionSpec struct {
	Mode      ProjectionMode
	Fields    []string
	ExcludeID bool
}

// IsEmpty reports whether all fields are returned.
func (p ProjectionSpec) IsEmpty() bool {
	return p.Mode == ProjectionAll && !p.ExcludeID
}

// ToBSON returns the projection document, or nil when all fields are returned.
func (p ProjectionSpec) ToBSON() bson.D {
	if p.IsEmpty() {
		return nil
	}
	doc := make(bson.D, 0, len(p.Fields)+1)
	flag := 1
	if p.Mode == ProjectionExclude {
		flag = 0
	}
	for _, f := range p.Fields {
		doc = append(doc, bson.E{Key: f, Value: flag})
	}
	if p.ExcludeID {
		doc = append(doc, bson.E{Key: "_id", Value: 0})
	}
	return doc
}

// PageBounds limits the returned window. Limit is always >= 1 after compilation.
type PageBounds struct {
	Limit   int64
	Skip    int64
	Clamped bool // Limit was lowered to the configured maximum
}

// CompiledQuery is the validated form of one request.
type CompiledQuery struct {
	Collection CollectionRef
	Filter     Value
	Sort       SortSpec
	Projection ProjectionSpec
	Page       PageBounds

	filterDoc bson.D
}

// NewCompiledQuery assembles a query. filterDoc is the lowered Filter.
func NewCompiledQuery(coll CollectionRef, filter Value, filterDoc bson.D, sort SortSpec, proj ProjectionSpec, page PageBounds) *CompiledQuery {
	if filterDoc == nil {
		filterDoc = bson.D{}
	}
	return &CompiledQuery{
		Collection: coll,
		Filter:     filter,
		Sort:       sort,
		Projection: proj,
		Page:       page,
		filterDoc:  filterDoc,
	}
}

// FilterDocument returns the filter in the driver's representation.
func (q *CompiledQuery) FilterDocument() bson.D {
	return q.filterDoc
}
