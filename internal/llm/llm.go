package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

// Message is one turn of a structured prompt.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Request describes a single text-generation call. ResponseSchema, when set,
// asks the provider for output conforming to the given JSON schema.
type Request struct {
	Messages       []Message
	ResponseSchema json.RawMessage
}

// Client is the external text-generation collaborator. This is the only
// operation the core consumes; prompt construction is the caller's concern.
type Client interface {
	Query(ctx context.Context, req Request) (string, error)
}

// QueryFunc adapts a plain function to the Client interface.
type QueryFunc func(ctx context.Context, req Request) (string, error)

func (f QueryFunc) Query(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// ProviderError reports a failed or rejected text-generation call. Callers
// recover locally (retry within budget, then degrade to defaults); a
// ProviderError never aborts a listing assembly on its own.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider error: %s", e.Message)
}
