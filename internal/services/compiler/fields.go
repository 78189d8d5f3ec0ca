package compiler

import (
	"fmt"
	"strings"

	domainerrors "github.com/unifiedui/docdb-gateway/internal/domain/errors"
	"github.com/unifiedui/docdb-gateway/internal/domain/query"
)

// validateField checks a dotted field path used by sort and projection.
func validateField(field string) error {
	if field == "" {
		return fmt.Errorf("field name is empty")
	}
	if strings.HasPrefix(field, "$") {
		return fmt.Errorf("field %q must not start with '$'", field)
	}
	if strings.ContainsRune(field, 0) {
		return fmt.Errorf("field %q contains NUL", field)
	}
	for _, part := range strings.Split(field, ".") {
		if part == "" {
			return fmt.Errorf("field %q has an empty path segment", field)
		}
	}
	return nil
}

func parseDirection(s string) (query.Direction, bool) {
	switch strings.ToLower(s) {
	case "", "asc", "ascending", "1":
		return query.Ascending, true
	case "desc", "descending", "-1":
		return query.Descending, true
	}
	return 0, false
}

// ParseSort parses "field[:dir],field[:dir]". An empty string means no order.
func ParseSort(raw string) (query.SortSpec, error) {
	if raw == "" {
		return nil, nil
	}

	invalid := func(msg string) error {
		return domainerrors.NewClientInputError(domainerrors.CodeInvalidSortSyntax, ParamSort, msg)
	}

	items := strings.Split(raw, ",")
	if len(items) > maxSortKeys {
		return nil, invalid(fmt.Sprintf("at most %d sort keys are allowed", maxSortKeys))
	}

	spec := make(query.SortSpec, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			return nil, invalid("sort contains an empty item")
		}

		field, dir, hasDir := strings.Cut(item, ":")
		field = strings.TrimSpace(field)
		if err := validateField(field); err != nil {
			return nil, invalid(err.Error())
		}

		direction, ok := parseDirection(strings.TrimSpace(dir))
		if !ok || (hasDir && strings.TrimSpace(dir) == "") {
			return nil, invalid(fmt.Sprintf("invalid sort direction %q for field %q", dir, field))
		}

		if _, dup := seen[field]; dup {
			return nil, invalid(fmt.Sprintf("field %q appears more than once", field))
		}
		seen[field] = struct{}{}

		spec = append(spec, query.SortKey{Field: field, Direction: direction})
	}
	return spec, nil
}

// ParseProjection parses "f1,f2" (include) or "-f1,-f2" (exclude). An include
// list may additionally drop _id with "-_id".
func ParseProjection(raw string) (query.ProjectionSpec, error) {
	if raw == "" {
		return query.ProjectionSpec{}, nil
	}

	invalid := func(msg string) error {
		return domainerrors.NewClientInputError(domainerrors.CodeInvalidProjectionSyntax, ParamProjection, msg)
	}

	var includes, excludes []string
	excludeID := false
	seen := make(map[string]struct{})

	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			return query.ProjectionSpec{}, invalid("projection contains an empty item")
		}

		exclude := strings.HasPrefix(item, "-")
		field := strings.TrimPrefix(item, "-")
		if err := validateField(field); err != nil {
			return query.ProjectionSpec{}, invalid(err.Error())
		}
		if _, dup := seen[field]; dup {
			return query.ProjectionSpec{}, invalid(fmt.Sprintf("field %q appears more than once", field))
		}
		seen[field] = struct{}{}

		switch {
		case exclude && field == "_id":
			excludeID = true
		case exclude:
			excludes = append(excludes, field)
		default:
			includes = append(includes, field)
		}
	}

	if len(includes) > 0 && len(excludes) > 0 {
		return query.ProjectionSpec{}, domainerrors.NewClientInputError(domainerrors.CodeMixedProjectionMode, ParamProjection,
			"projection cannot mix included and excluded fields")
	}

	switch {
	case len(includes) > 0:
		return query.ProjectionSpec{Mode: query.ProjectionInclude, Fields: includes, ExcludeID: excludeID}, nil
	case len(excludes) > 0:
		return query.ProjectionSpec{Mode: query.ProjectionExclude, Fields: excludes, ExcludeID: excludeID}, nil
	}
	// only "-_id"
	return query.ProjectionSpec{Mode: query.ProjectionExclude, ExcludeID: true}, nil
}
