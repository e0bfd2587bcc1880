package task

import (
	"context"
	"strings"
	"testing"
	"time"

	"animus/internal/model"
)

type echoTools struct {
	calls []string
}

func (e *echoTools) Execute(ctx context.Context, toolName string, args map[string]interface{}) (string, error) {
	e.calls = append(e.calls, toolName)
	input, _ := args["input"].(string)
	return "echo: " + input, nil
}

func TestModelRunner_PlainCompletion(t *testing.T) {
	client := model.NewOfflineClient()
	client.Responses = []string{"the answer"}

	m := NewManager(&ModelRunner{Client: client}, nil, DefaultConfig())
	defer m.Shutdown(context.Background())

	id, _ := m.Spawn("ask", "what is it")
	result, err := m.Wait(id, time.Second)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if result != "the answer" {
		t.Fatalf("result = %q, want the answer", result)
	}
}

func TestModelRunner_ToolLoop(t *testing.T) {
	client := model.NewOfflineClient()
	client.Responses = []string{
		"TOOL search golang schedulers",
		"final summary",
	}
	tools := &echoTools{}

	m := NewManager(&ModelRunner{Client: client, Tools: tools}, nil, DefaultConfig())
	defer m.Shutdown(context.Background())

	id, _ := m.Spawn("research", "find schedulers")
	result, err := m.Wait(id, 2*time.Second)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if result != "final summary" {
		t.Fatalf("result = %q, want final summary", result)
	}
	if len(tools.calls) != 1 || tools.calls[0] != "search" {
		t.Fatalf("tool calls = %v, want [search]", tools.calls)
	}

	lines, _ := m.Output(id)
	joined := strings.Join(lines, "\n")
	if !strings.Contains(joined, "tool search") {
		t.Fatalf("output missing tool step: %v", lines)
	}
}

type cannedAsker struct {
	answer    string
	questions []string
}

func (a *cannedAsker) AskUser(ctx context.Context, taskID, question string) (string, error) {
	a.questions = append(a.questions, question)
	return a.answer, nil
}

func TestModelRunner_BlockingQuestion(t *testing.T) {
	client := model.NewOfflineClient()
	client.Responses = []string{
		"ASK which environment?",
		"deployed to staging",
	}
	asker := &cannedAsker{answer: "staging"}

	m := NewManager(&ModelRunner{Client: client, Questions: asker}, nil, DefaultConfig())
	defer m.Shutdown(context.Background())

	id, _ := m.Spawn("deploy", "roll it out")
	result, err := m.Wait(id, 2*time.Second)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if result != "deployed to staging" {
		t.Fatalf("result = %q, want deployed to staging", result)
	}
	if len(asker.questions) != 1 || asker.questions[0] != "which environment?" {
		t.Fatalf("questions = %v", asker.questions)
	}

	lines, _ := m.Output(id)
	joined := strings.Join(lines, "\n")
	if !strings.Contains(joined, "answer: staging") {
		t.Fatalf("output missing answer step: %v", lines)
	}
}

func TestModelRunner_StepLimit(t *testing.T) {
	client := model.NewOfflineClient()
	client.Responses = []string{
		"TOOL loop a", "TOOL loop b", "TOOL loop c",
	}
	tools := &echoTools{}

	m := NewManager(&ModelRunner{Client: client, Tools: tools, MaxToolSteps: 2}, nil, DefaultConfig())
	defer m.Shutdown(context.Background())

	id, _ := m.Spawn("spin", "never ends")
	if _, err := m.Wait(id, 2*time.Second); err == nil {
		t.Fatal("Wait() error = nil, want step-limit failure")
	}
	got, _ := m.Status(id)
	if got.Status != StatusFailed {
		t.Fatalf("Status = %v, want failed", got.Status)
	}
}

func TestModelRunner_CancelledBetweenSteps(t *testing.T) {
	client := model.NewOfflineClient()
	client.Latency = 50 * time.Millisecond

	m := NewManager(&ModelRunner{Client: client}, nil, DefaultConfig())
	defer m.Shutdown(context.Background())

	id, _ := m.Spawn("slow", "q")
	time.Sleep(10 * time.Millisecond)
	if err := m.Cancel(id); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if _, err := m.Wait(id, 2*time.Second); err != ErrCancelled {
		t.Fatalf("Wait() error = %v, want ErrCancelled", err)
	}
}

func TestParseToolCall(t *testing.T) {
	name, arg, ok := parseToolCall("TOOL grep needle haystack")
	if !ok || name != "grep" || arg != "needle haystack" {
		t.Fatalf("parseToolCall = (%q, %q, %v)", name, arg, ok)
	}
	if _, _, ok := parseToolCall("plain answer"); ok {
		t.Fatal("plain text parsed as tool call")
	}
	if _, _, ok := parseToolCall("TOOL   "); ok {
		t.Fatal("empty tool call parsed as valid")
	}
}
