package gateway

import "github.com/quicksuite-labs/agentgateway/pkg/sanitization"

// Envelope is the response shape every tool Lambda returns to the gateway.
type Envelope struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers"`
	Body       Body              `json:"body"`
}

// Body carries either the tool result or a structured error, never both.
type Body struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// ErrorBody is the client-safe error representation.
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// SecurityHeaders returns the headers attached to every response.
func SecurityHeaders() map[string]string {
	return map[string]string{
		"Content-Type":              "application/json",
		"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
		"X-Content-Type-Options":    "nosniff",
		"X-Frame-Options":           "DENY",
		"Content-Security-Policy":   "default-src 'none'",
	}
}

// SuccessEnvelope wraps data in a 200 response.
func SuccessEnvelope(data any) Envelope {
	return Envelope{
		StatusCode: 200,
		Headers:    SecurityHeaders(),
		Body:       Body{Success: true, Data: data},
	}
}

// ErrorEnvelope converts err into a response envelope. The message is
// scrubbed of ARNs and key material before it is serialized.
func ErrorEnvelope(err error) Envelope {
	toolErr := AsToolError(err)
	status := toolErr.Status
	if status == 0 {
		status = StatusForCode(toolErr.Code)
	}
	return Envelope{
		StatusCode: status,
		Headers:    SecurityHeaders(),
		Body: Body{
			Success: false,
			Error: &ErrorBody{
				Code:    toolErr.Code,
				Message: sanitization.ScrubMessage(toolErr.Message),
				Details: toolErr.Details,
			},
		},
	}
}
