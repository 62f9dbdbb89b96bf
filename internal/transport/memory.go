package transport

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-process transport used by tests and the embeddable
// examples. Sent prompts are recorded; decisions and commands are injected
// by the test through PushDecision/PushList.
type Memory struct {
	mu        sync.Mutex
	seq       int
	prompts   map[Handle]Prompt
	finals    map[Handle]string
	notices   []string
	decisions chan Decision
	commands  chan Command
	closed    bool
}

func NewMemory() *Memory {
	return &Memory{
		prompts:   make(map[Handle]Prompt),
		finals:    make(map[Handle]string),
		decisions: make(chan Decision, 16),
		commands:  make(chan Command, 16),
	}
}

func (m *Memory) SendPrompt(_ context.Context, p Prompt) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	h := Handle(fmt.Sprintf("mem-%d", m.seq))
	m.prompts[h] = p
	return h, nil
}

func (m *Memory) UpdatePrompt(_ context.Context, h Handle, finalText string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.prompts[h]; !ok {
		return fmt.Errorf("unknown prompt handle %s", h)
	}
	m.finals[h] = finalText
	return nil
}

func (m *Memory) Notify(_ context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notices = append(m.notices, text)
	return nil
}

func (m *Memory) Decisions() <-chan Decision { return m.decisions }
func (m *Memory) Commands() <-chan Command   { return m.commands }

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.decisions)
		close(m.commands)
	}
	return nil
}

// PushDecision injects an operator decision as if it arrived from chat.
func (m *Memory) PushDecision(d Decision) { m.decisions <- d }

// PushList injects a list command.
func (m *Memory) PushList() { m.commands <- Command{Kind: CommandList} }

// SentCount reports how many prompts were delivered.
func (m *Memory) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// Sent returns the prompts delivered so far, keyed by handle.
func (m *Memory) Sent() map[Handle]Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[Handle]Prompt, len(m.prompts))
	for h, p := range m.prompts {
		out[h] = p
	}
	return out
}

// FinalText returns the resolved text for a handle, if UpdatePrompt ran.
func (m *Memory) FinalText(h Handle) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.finals[h]
	return s, ok
}

// Notices returns the plain notifications sent so far.
func (m *Memory) Notices() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.notices...)
}
