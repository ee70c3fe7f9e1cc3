// Package llm defines the Provider interface for dialogue generation.
//
// The gateway uses a provider to turn a recognised utterance plus a short
// rolling history into a spoken reply. Implementations must be safe for
// concurrent use.
package llm

import "context"

// Role identifies the author of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    Role
	Content string
}

// CompletionRequest describes one completion call.
type CompletionRequest struct {
	// SystemPrompt is prepended as a system message when non-empty.
	SystemPrompt string

	// Messages is the conversation so far, oldest first.
	Messages []Message

	// Temperature controls sampling; zero selects the provider default.
	Temperature float64

	// MaxTokens caps the reply length; zero selects the provider default.
	MaxTokens int
}

// Usage reports token consumption when the backend provides it.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionResponse is the provider's reply.
type CompletionResponse struct {
	Content string
	Usage   Usage
}

// Provider is the abstraction over any dialogue backend.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
