package schemas

import (
	"context"
)

// -- Browser Interfaces --

// BrowserManager owns the browser process and hands out one page per
// analysis. Pages are independent; a manager may serve several concurrently.
type BrowserManager interface {
	// Open navigates a fresh tab to url and returns once the DOM content has
	// loaded. The caller owns the returned page and must Close it.
	Open(ctx context.Context, url string) (PageHandle, error)
	// Shutdown closes every page and terminates the browser.
	Shutdown(ctx context.Context) error
}

// PageHandle is a live, navigated page.
type PageHandle interface {
	// URL is the address the page was opened with.
	URL() string
	// ContentLength returns the length of the serialized document markup.
	ContentLength(ctx context.Context) (int, error)
	// HTML returns the serialized document markup.
	HTML(ctx context.Context) (string, error)
	// Close releases the tab. It is safe to call more than once.
	Close() error
}

// -- LLM Client Schemas & Interface --

// GenerationOptions controls a single text-generation call.
type GenerationOptions struct {
	Temperature     float64 `json:"temperature"`
	MaxTokens       int     `json:"max_tokens"`
	ForceJSONFormat bool    `json:"force_json_format"`
}

// GenerationRequest is one prompt pair sent to a text-generation service.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"`
	UserPrompt   string            `json:"user_prompt"`
	Options      GenerationOptions `json:"options"`
}

// LLMClient abstracts the text-generation provider.
type LLMClient interface {
	// Generate returns the model's text output for req.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	// Close releases any resources held by the client.
	Close() error
}
