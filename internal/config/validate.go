package config

import (
	"fmt"
	"strings"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "pool.max_size").
	Field   string
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError collects every failed rule.
type ValidationError struct {
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d errors:", len(e.Errors))
	for _, err := range e.Errors {
		sb.WriteString("\n  - ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Validate checks the configuration and returns a ValidationError listing
// every problem, or nil.
func (c *Config) Validate() error {
	var errs []FieldError
	add := func(field, format string, args ...interface{}) {
		errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.DocDB.URI == "" {
		add("docdb.uri", "a connection string is required")
	}
	if c.DocDB.Database == "" {
		add("docdb.database", "a database name is required")
	}
	if c.DocDB.Password != "" && c.DocDB.Username == "" {
		add("docdb.password", "a password requires a username")
	}
	if c.DocDB.Type != "mongodb" && c.DocDB.Type != "cosmosdb" {
		add("docdb.type", "unsupported backend %q", c.DocDB.Type)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		add("server.port", "must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Pool.MaxSize < 1 {
		add("pool.max_size", "must be at least 1, got %d", c.Pool.MaxSize)
	}
	if c.Pool.MinSize < 0 || c.Pool.MinSize > c.Pool.MaxSize {
		add("pool.min_size", "must be between 0 and pool.max_size (%d), got %d", c.Pool.MaxSize, c.Pool.MinSize)
	}
	if c.Pool.LeaseTimeout < 0 {
		add("pool.lease_timeout", "must not be negative")
	}
	if c.Pool.UnavailableAfter < 1 {
		add("pool.unavailable_after", "must be at least 1, got %d", c.Pool.UnavailableAfter)
	}

	if c.Query.MaxLimit < 1 {
		add("query.max_limit", "must be at least 1, got %d", c.Query.MaxLimit)
	}
	if c.Query.DefaultLimit < 1 || c.Query.DefaultLimit > c.Query.MaxLimit {
		add("query.default_limit", "must be between 1 and query.max_limit (%d), got %d", c.Query.MaxLimit, c.Query.DefaultLimit)
	}
	if c.Query.Timeout <= 0 {
		add("query.timeout", "must be positive")
	}
	for _, op := range c.Query.DeniedOperators {
		if !strings.HasPrefix(op, "$") {
			add("query.denied_operators", "%q is not an operator", op)
		}
	}

	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		add("log.format", "must be json or console, got %q", c.Log.Format)
	}

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}
