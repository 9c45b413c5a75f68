// Package types defines the wire envelopes every storefront endpoint returns.
package types

// SuccessEnvelope wraps a successful payload under a "data" key.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the client-facing error body: a stable code, a safe message,
// and optional structured details (field errors, order totals).
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorEnvelope wraps an APIError under an "error" key.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
