package dto

// ErrorResponse is the body of every non-2xx HTTP reply.
type ErrorResponse struct {
	Error      string            `json:"error"`
	Fields     map[string]string `json:"fields,omitempty"`
	RetryAfter int64             `json:"retry_after,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
