package transport

import (
	"context"
	"fmt"

	"github.com/modqueue/modq/internal/record"
)

// Handle identifies a delivered prompt within one transport, opaque to the
// engine. For Telegram it is "<chat>:<message>".
type Handle string

// Prompt is a decision request for a single pending record. Ref is the
// surrogate ref the transport must echo back in the decision event.
type Prompt struct {
	Ref  string
	Text string
}

// Decision is an operator verdict delivered by the transport.
type Decision struct {
	Ref     string
	Verdict record.Verdict
}

// CommandKind enumerates operator commands the engine reacts to.
type CommandKind int

const (
	// CommandList asks the engine to re-fetch pending records and re-send
	// prompts for all of them.
	CommandList CommandKind = iota
)

type Command struct {
	Kind CommandKind
}

// Transport is the chat side of the workflow: it delivers prompts, streams
// operator decisions back, and lets the engine mark prompts resolved.
// Implementations own their delivery details; the engine never sees raw
// transport errors, only wrapped ones.
type Transport interface {
	// SendPrompt delivers a decision prompt with approve/reject controls
	// and returns a handle for a later UpdatePrompt.
	SendPrompt(ctx context.Context, p Prompt) (Handle, error)
	// UpdatePrompt rewrites a delivered prompt to its final text and
	// removes the decision controls.
	UpdatePrompt(ctx context.Context, h Handle, finalText string) error
	// Notify sends a plain informational message to the operator.
	Notify(ctx context.Context, text string) error
	// Decisions streams operator verdicts until Close.
	Decisions() <-chan Decision
	// Commands streams operator commands until Close.
	Commands() <-chan Command
	Close() error
}

// Config selects and parameterizes a transport implementation.
type Config struct {
	Type string `toml:"type" mapstructure:"type"` // "telegram" or "memory"

	// Telegram specific.
	Token       string `toml:"token,omitempty" mapstructure:"token"`
	AdminChatID int64  `toml:"admin_chat_id,omitempty" mapstructure:"admin_chat_id"`
	Debug       bool   `toml:"debug,omitempty" mapstructure:"debug"`
}

// New builds a transport from config.
func New(cfg Config) (Transport, error) {
	switch cfg.Type {
	case "telegram":
		return NewTelegram(cfg)
	case "memory", "":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported transport type: %s", cfg.Type)
	}
}
