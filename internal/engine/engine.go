// Package engine abstracts the reasoning backend an agent delegates its
// turns to. The production implementation shells out to the claude CLI in
// headless mode; tests substitute fakes.
package engine

import "context"

// Request is one turn handed to the engine. The engine call is the only
// point where an agent blocks for a long time.
type Request struct {
	// Prompt is the user-side text for this turn.
	Prompt string
	// Resume, when set, continues the conversation with this session ID
	// instead of starting a new one.
	Resume string
	// SystemPrompt is appended to the engine's base system prompt on new
	// conversations. Ignored on resume.
	SystemPrompt string
	// AllowedTools restricts which tools the engine may invoke.
	AllowedTools []string
	// PermissionMode selects the engine's tool-approval policy.
	PermissionMode string
	// Dir is the working directory for the engine process.
	Dir string
}

// Result is what a completed engine turn reports back.
type Result struct {
	// SessionID identifies the conversation; pass it as Resume to continue.
	SessionID string
	// NumTurns is the conversation length so far.
	NumTurns int
	// TotalCostUSD is the cumulative spend for the conversation.
	TotalCostUSD float64
	// Text is the engine's final reply for this turn.
	Text string
	// IsError reports that the engine finished abnormally (hit its turn
	// limit, crashed a tool, refused).
	IsError bool
}

// Runner executes engine turns.
type Runner interface {
	Run(ctx context.Context, req Request) (*Result, error)
}
