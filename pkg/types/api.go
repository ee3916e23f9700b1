package types

// GenerateRequest is the normalized POST /generate payload, after defaults
// and type coercion have been applied.
type GenerateRequest struct {
	// Required prompt text.
	// example: Write a haiku about the ocean.
	Prompt string `json:"prompt" example:"Write a haiku about the ocean."`
	// Upper bound on generated tokens. Defaults to 512.
	// example: 128
	MaxTokens int `json:"max_tokens,omitempty" example:"128"`
	// Sampling temperature (higher = more random). Defaults to 0.6.
	// example: 0.7
	Temperature float64 `json:"temperature,omitempty" example:"0.7"`
}

// GenerateResponse is returned by POST /generate on success.
type GenerateResponse struct {
	// Full generated text.
	// example: The tide pulls the moon
	Text string `json:"text" example:"The tide pulls the moon"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: prompt is required
	Error string `json:"error" example:"prompt is required"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}
