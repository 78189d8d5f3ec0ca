// Package compiler turns untrusted query-string parameters into a CompiledQuery.
//
// Compilation is pure: it performs no I/O, and the same input always yields
// the same query or the same error kind.
package compiler

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	domainerrors "github.com/unifiedui/docdb-gateway/internal/domain/errors"
	"github.com/unifiedui/docdb-gateway/internal/domain/query"
)

// Request parameter names.
const (
	ParamQuery      = "query"
	ParamLimit      = "limit"
	ParamSkip       = "skip"
	ParamSort       = "sort"
	ParamProjection = "projection"
	ParamCollection = "collection"
)

const (
	maxCollectionBytes = 255
	maxSortKeys        = 32
)

// Options bound what a request may ask for.
type Options struct {
	DefaultLimit   int64
	MaxLimit       int64
	MaxFilterBytes int
	MaxFilterDepth int
	// DeniedOperators are rejected as keys anywhere in a filter. Nil means
	// the default list; an empty slice denies nothing.
	DeniedOperators []string
}

// DefaultOptions returns the built-in bounds.
func DefaultOptions() Options {
	return Options{
		DefaultLimit:   50,
		MaxLimit:       1000,
		MaxFilterBytes: 16 * 1024,
		MaxFilterDepth: 32,
		// these run JavaScript on the server
		DeniedOperators: []string{"$where", "$function", "$accumulator"},
	}
}

// Compiler validates request parameters.
type Compiler struct {
	opts   Options
	denied map[string]bool
}

// New creates a compiler. Zero fields in opts fall back to DefaultOptions.
func New(opts Options) *Compiler {
	defaults := DefaultOptions()
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = defaults.DefaultLimit
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = defaults.MaxLimit
	}
	if opts.DefaultLimit > opts.MaxLimit {
		opts.DefaultLimit = opts.MaxLimit
	}
	if opts.MaxFilterBytes <= 0 {
		opts.MaxFilterBytes = defaults.MaxFilterBytes
	}
	if opts.MaxFilterDepth <= 0 {
		opts.MaxFilterDepth = defaults.MaxFilterDepth
	}
	if opts.DeniedOperators == nil {
		opts.DeniedOperators = defaults.DeniedOperators
	}

	denied := make(map[string]bool, len(opts.DeniedOperators))
	for _, op := range opts.DeniedOperators {
		denied[op] = true
	}
	return &Compiler{opts: opts, denied: denied}
}

// Options returns the effective bounds.
func (c *Compiler) Options() Options {
	return c.opts
}

// Compile validates collection and params in a fixed order (collection,
// filter, limit, skip, sort, projection) and returns the first failure as a
// client input error.
func (c *Compiler) Compile(collection string, params url.Values) (*query.CompiledQuery, error) {
	coll, err := ParseCollection(collection)
	if err != nil {
		return nil, err
	}

	filter, filterDoc, err := c.compileFilter(params)
	if err != nil {
		return nil, err
	}

	page, err := c.compilePage(params)
	if err != nil {
		return nil, err
	}

	sort, err := ParseSort(first(params, ParamSort))
	if err != nil {
		return nil, err
	}

	proj, err := ParseProjection(first(params, ParamProjection))
	if err != nil {
		return nil, err
	}

	return query.NewCompiledQuery(coll, filter, filterDoc, sort, proj, page), nil
}

// first returns the first value of a parameter, or "" when absent.
func first(params url.Values, key string) string {
	if vs, ok := params[key]; ok && len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func present(params url.Values, key string) bool {
	vs, ok := params[key]
	return ok && len(vs) > 0
}

// ParseCollection validates a collection name.
func ParseCollection(name string) (query.CollectionRef, error) {
	invalid := func(msg string) error {
		return domainerrors.NewClientInputError(domainerrors.CodeInvalidCollection, ParamCollection, msg)
	}
	switch {
	case name == "":
		return "", invalid("collection name is empty")
	case len(name) > maxCollectionBytes:
		return "", invalid(fmt.Sprintf("collection name exceeds %d bytes", maxCollectionBytes))
	case strings.ContainsRune(name, '$'):
		return "", invalid("collection name must not contain '$'")
	case strings.ContainsRune(name, 0):
		return "", invalid("collection name must not contain NUL")
	case strings.HasPrefix(name, "system."):
		return "", invalid("system collections are not accessible")
	case strings.HasPrefix(name, ".") || strings.HasSuffix(name, "."):
		return "", invalid("collection name must not start or end with '.'")
	}
	return query.CollectionRef(name), nil
}

func (c *Compiler) compileFilter(params url.Values) (query.Value, bson.D, error) {
	raw := first(params, ParamQuery)
	if !present(params, ParamQuery) || strings.TrimSpace(raw) == "" {
		return query.Object(), nil, nil
	}

	invalid := func(msg string) error {
		return domainerrors.NewClientInputError(domainerrors.CodeInvalidFilterSyntax, ParamQuery, msg)
	}

	if len(raw) > c.opts.MaxFilterBytes {
		return query.Value{}, nil, invalid(fmt.Sprintf("filter exceeds %d bytes", c.opts.MaxFilterBytes))
	}

	v, err := query.Parse([]byte(raw), c.opts.MaxFilterDepth)
	if err != nil {
		if errors.Is(err, query.ErrTooDeep) {
			return query.Value{}, nil, invalid(fmt.Sprintf("filter nests deeper than %d levels", c.opts.MaxFilterDepth))
		}
		return query.Value{}, nil, invalid(fmt.Sprintf("filter is not valid JSON: %v", err))
	}
	if v.Kind() != query.KindObject {
		return query.Value{}, nil, invalid(fmt.Sprintf("filter must be a JSON object, got %s", v.Kind()))
	}
	if op, ok := c.deniedOperator(v); ok {
		return query.Value{}, nil, invalid(fmt.Sprintf("operator %s is not allowed", op))
	}

	doc, err := v.ToDocument()
	if err != nil {
		return query.Value{}, nil, invalid(err.Error())
	}
	return v, doc, nil
}

// deniedOperator finds the first denied key in v, at any depth.
func (c *Compiler) deniedOperator(v query.Value) (string, bool) {
	if len(c.denied) == 0 {
		return "", false
	}
	switch v.Kind() {
	case query.KindObject:
		for _, f := range v.Fields() {
			if c.denied[f.Key] {
				return f.Key, true
			}
			if op, ok := c.deniedOperator(f.Value); ok {
				return op, true
			}
		}
	case query.KindArray:
		for _, item := range v.Items() {
			if op, ok := c.deniedOperator(item); ok {
				return op, true
			}
		}
	}
	return "", false
}

func (c *Compiler) compilePage(params url.Values) (query.PageBounds, error) {
	page := query.PageBounds{Limit: c.opts.DefaultLimit}

	if present(params, ParamLimit) {
		raw := first(params, ParamLimit)
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return page, domainerrors.NewClientInputError(domainerrors.CodeInvalidLimit, ParamLimit,
				fmt.Sprintf("limit %q is not an integer", raw))
		}
		if n <= 0 {
			return page, domainerrors.NewClientInputError(domainerrors.CodeInvalidLimit, ParamLimit,
				"limit must be greater than zero")
		}
		if n > c.opts.MaxLimit {
			n = c.opts.MaxLimit
			page.Clamped = true
		}
		page.Limit = n
	}

	if present(params, ParamSkip) {
		raw := first(params, ParamSkip)
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return page, domainerrors.NewClientInputError(domainerrors.CodeInvalidSkip, ParamSkip,
				fmt.Sprintf("skip %q is not an integer", raw))
		}
		if n < 0 {
			return page, domainerrors.NewClientInputError(domainerrors.CodeInvalidSkip, ParamSkip,
				"skip must not be negative")
		}
		page.Skip = n
	}

	return page, nil
}
