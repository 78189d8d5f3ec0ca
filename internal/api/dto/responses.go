// Package dto provides Data Transfer Objects for API responses.
package dto

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error     string `json:"error" example:"InvalidLimit"`
	Message   string `json:"message" example:"limit must be a positive integer"`
	Parameter string `json:"parameter,omitempty" example:"limit"`
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status     string            `json:"status" example:"healthy"`
	Components map[string]string   `json:"components,omitempty"`
	Pool       *PoolStatusResponse `json:"pool,omitempty"`
}

// PoolStatusResponse describes the connection pool in health output.
type PoolStatusResponse struct {
	State   string `json:"state" example:"ready"`
	Open    int    `json:"open"`
	Idle    int    `json:"idle"`
	InUse   int    `json:"inUse"`
	Waiting int    `json:"waiting"`
}

// StatusResponse is a bare status answer used by readiness and liveness.
type StatusResponse struct {
	Status string `json:"status" example:"ready"`
	Reason string `json:"reason,omitempty"`
}
