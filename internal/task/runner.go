package task

import (
	"context"
	"fmt"
	"strings"

	"animus/internal/logging"
	"animus/internal/types"
)

// Runner executes one task's unit of work. Implementations must poll
// ctx (or Handle.Cancelled) between steps; there is no preemption.
type Runner interface {
	Run(ctx context.Context, h *Handle) (string, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, h *Handle) (string, error)

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context, h *Handle) (string, error) {
	return f(ctx, h)
}

// ModelRunner is the default unit of work: it asks the model to act on
// the task's query, optionally executing tool calls the model emits or
// escalating a blocking question to the user. Cancellation is checked
// before every model, tool, or question step.
type ModelRunner struct {
	Client    types.ModelClient
	Tools     types.ToolExecutor
	Questions types.QuestionAsker

	// SystemPrompt frames every completion. Optional.
	SystemPrompt string

	// MaxToolSteps bounds the act loop. Default: 8.
	MaxToolSteps int
}

// toolCallPrefix marks a model output line requesting a tool invocation,
// formatted as: TOOL <name> <single-line argument>
const toolCallPrefix = "TOOL "

// askPrefix marks a model output line escalating a blocking question,
// formatted as: ASK <single-line question>
const askPrefix = "ASK "

// Run implements Runner.
func (r *ModelRunner) Run(ctx context.Context, h *Handle) (string, error) {
	if r.Client == nil {
		return "", fmt.Errorf("model client not configured")
	}

	maxSteps := r.MaxToolSteps
	if maxSteps <= 0 {
		maxSteps = 8
	}

	t := h.Task()
	prompt := t.Query

	for step := 0; step < maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if h.Cancelled() {
			return "", context.Canceled
		}

		logging.ModelDebug("Task %s model step %d", h.ID(), step+1)
		h.AppendOutput(fmt.Sprintf("model step %d", step+1))

		var out string
		var err error
		if r.SystemPrompt != "" {
			out, err = r.Client.CompleteWithSystem(ctx, r.SystemPrompt, prompt)
		} else {
			out, err = r.Client.Complete(ctx, prompt)
		}
		if err != nil {
			return "", fmt.Errorf("model completion failed: %w", err)
		}

		if question, isAsk := parseAsk(out); isAsk && r.Questions != nil {
			// The wait for an answer is a suspension point.
			h.AppendOutput(fmt.Sprintf("question: %s", question))
			answer, err := r.Questions.AskUser(ctx, h.ID(), question)
			if err != nil {
				return "", fmt.Errorf("blocking question unanswered: %w", err)
			}
			h.AppendOutput(fmt.Sprintf("answer: %s", answer))
			prompt = fmt.Sprintf("%s\n\nYou asked: %s\nThe user answered: %s", t.Query, question, answer)
			continue
		}

		name, arg, isTool := parseToolCall(out)
		if !isTool || r.Tools == nil {
			h.SetProgress(100)
			h.AppendOutput(out)
			return out, nil
		}

		// Suspension point between the model step and the tool step.
		if err := ctx.Err(); err != nil {
			return "", err
		}

		h.AppendOutput(fmt.Sprintf("tool %s", name))
		result, err := r.Tools.Execute(ctx, name, map[string]interface{}{"input": arg})
		if err != nil {
			return "", fmt.Errorf("tool %s failed: %w", name, err)
		}
		h.AppendOutput(result)
		h.SetProgress((step + 1) * 100 / maxSteps)

		prompt = fmt.Sprintf("%s\n\nTool %s returned:\n%s", t.Query, name, result)
	}

	return "", fmt.Errorf("exceeded %d tool steps without a final answer", maxSteps)
}

// parseAsk recognizes a leading "ASK question" line in model output.
func parseAsk(out string) (question string, ok bool) {
	line := strings.TrimSpace(out)
	if !strings.HasPrefix(line, askPrefix) {
		return "", false
	}
	question = strings.TrimSpace(strings.TrimPrefix(line, askPrefix))
	return question, question != ""
}

// parseToolCall recognizes a leading "TOOL name args" line in model output.
func parseToolCall(out string) (name, arg string, ok bool) {
	line := strings.TrimSpace(out)
	if !strings.HasPrefix(line, toolCallPrefix) {
		return "", "", false
	}
	rest := strings.TrimSpace(strings.TrimPrefix(line, toolCallPrefix))
	if rest == "" {
		return "", "", false
	}
	parts := strings.SplitN(rest, " ", 2)
	name = parts[0]
	if len(parts) == 2 {
		arg = parts[1]
	}
	return name, arg, true
}
