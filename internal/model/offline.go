// Package model provides offline implementations of the collaborator
// interfaces. The real model provider, tool layer, and memory system
// live outside this module; these stand-ins keep the orchestration core
// runnable and testable without them.
package model

import (
	"context"
	"fmt"
	"sync"
	"time"

	"animus/internal/logging"
	"animus/internal/types"
)

// OfflineClient is a canned ModelClient. It answers every completion
// with a fixed acknowledgment (or scripted responses when provided) and
// honors context cancellation during its simulated latency.
type OfflineClient struct {
	mu sync.Mutex

	// Latency simulates model round-trip time. Zero means immediate.
	Latency time.Duration

	// Responses are returned in order; when exhausted, a generic
	// acknowledgment is produced.
	Responses []string

	calls int
}

// NewOfflineClient returns a client with no latency and no script.
func NewOfflineClient() *OfflineClient {
	return &OfflineClient{}
}

// Complete implements types.ModelClient.
func (c *OfflineClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.respond(ctx, prompt)
}

// CompleteWithSystem implements types.ModelClient.
func (c *OfflineClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.respond(ctx, userPrompt)
}

// Calls returns how many completions have been served.
func (c *OfflineClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *OfflineClient) respond(ctx context.Context, prompt string) (string, error) {
	if c.Latency > 0 {
		timer := time.NewTimer(c.Latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls++
	logging.ModelDebug("Offline completion %d (prompt %d bytes)", c.calls, len(prompt))

	if len(c.Responses) > 0 {
		out := c.Responses[0]
		c.Responses = c.Responses[1:]
		return out, nil
	}
	return fmt.Sprintf("acknowledged (%d bytes of context)", len(prompt)), nil
}

// NoopToolExecutor rejects every tool call. The tool layer is an
// external collaborator; this placeholder makes its absence explicit
// rather than silent.
type NoopToolExecutor struct{}

// Execute implements types.ToolExecutor.
func (NoopToolExecutor) Execute(ctx context.Context, toolName string, args map[string]interface{}) (string, error) {
	return "", fmt.Errorf("tool %q unavailable: no tool executor configured", toolName)
}

// StaticMemory is a fixed-content MemoryProvider keyed by topic.
type StaticMemory struct {
	Facts map[string][]types.Fact
}

// Recall implements types.MemoryProvider.
func (m *StaticMemory) Recall(ctx context.Context, topic string) ([]types.Fact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]types.Fact(nil), m.Facts[topic]...), nil
}
