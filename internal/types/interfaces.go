// Package types holds the shared types and collaborator interfaces for animus.
//
// The orchestration core treats the language model, tool execution, and
// workspace memory as opaque services. Only their interfaces live here;
// implementations are injected at workspace open.
package types

import (
	"context"
)

// ModelClient defines the interface for model completions.
// The core never inspects provider details; it asks, it gets text back.
type ModelClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ToolExecutor defines the interface for tool execution (file, shell,
// browser operations). Owned by the plugin layer, consumed here as-is.
type ToolExecutor interface {
	Execute(ctx context.Context, toolName string, args map[string]interface{}) (string, error)
}

// Fact is a single recalled item from a status/memory provider.
type Fact struct {
	Topic   string `json:"topic"`
	Content string `json:"content"`
}

// MemoryProvider is a read-only status/memory collaborator.
// The loop controller folds recalled facts into each briefing.
type MemoryProvider interface {
	Recall(ctx context.Context, topic string) ([]Fact, error)
}

// QuestionAsker lets a running unit of work raise a blocking question to
// the user and wait for the answer. Implemented by the loop controller;
// a nil asker means questions are not available in this context.
type QuestionAsker interface {
	AskUser(ctx context.Context, taskID, question string) (string, error)
}
