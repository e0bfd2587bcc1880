package conversation

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// memoryRepo is an in-memory Repository with scriptable failures.
type memoryRepo struct {
	mu       sync.Mutex
	saved    map[string]*Conversation
	failSave bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{saved: make(map[string]*Conversation)}
}

func (r *memoryRepo) Load() ([]*Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Conversation, 0, len(r.saved))
	for _, c := range r.saved {
		out = append(out, c.clone())
	}
	return out, nil
}

func (r *memoryRepo) Save(c *Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failSave {
		return errors.New("save failed")
	}
	r.saved[c.Name] = c.clone()
	return nil
}

func (r *memoryRepo) Delete(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.saved, name)
	return nil
}

func (r *memoryRepo) messageCount(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.saved[name]
	if !ok {
		return -1
	}
	return len(c.Messages)
}

func TestRegistry_DefaultCreatedOnce(t *testing.T) {
	repo := newMemoryRepo()

	r, err := NewRegistry(repo)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	def, err := r.Get(DefaultName)
	if err != nil {
		t.Fatalf("Get(chat) error = %v", err)
	}
	if !def.IsDefault {
		t.Fatal("default conversation not flagged IsDefault")
	}
	if def.ParentName != "" {
		t.Fatalf("default ParentName = %q, want empty", def.ParentName)
	}

	// A second load reuses the persisted default instead of recreating it.
	r.Append(DefaultName, NewMessage(RoleUser, "hello"))
	r2, err := NewRegistry(repo)
	if err != nil {
		t.Fatalf("second NewRegistry() error = %v", err)
	}
	msgs, _ := r2.History(DefaultName, 0)
	if len(msgs) != 1 || msgs[0].Content != "hello" {
		t.Fatalf("reloaded history = %+v", msgs)
	}
}

func TestRegistry_CreateAndSwitch(t *testing.T) {
	r, _ := NewRegistry(newMemoryRepo())

	c, err := r.Create("research")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if c.ParentName != DefaultName {
		t.Fatalf("ParentName = %q, want chat", c.ParentName)
	}

	if _, err := r.Create("research"); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("duplicate Create() error = %v, want ErrAlreadyExists", err)
	}
	if _, err := r.Create("   "); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("blank Create() error = %v, want ErrInvalidArgument", err)
	}

	if _, err := r.SwitchTo("research"); err != nil {
		t.Fatalf("SwitchTo() error = %v", err)
	}
	if r.Active() != "research" {
		t.Fatalf("Active = %q, want research", r.Active())
	}

	// SwitchTo never creates.
	if _, err := r.SwitchTo("ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("SwitchTo(ghost) error = %v, want ErrNotFound", err)
	}
	if r.Active() != "research" {
		t.Fatal("failed switch changed the active conversation")
	}
}

func TestRegistry_DeleteRules(t *testing.T) {
	r, _ := NewRegistry(newMemoryRepo())
	r.Create("scratch")
	r.SwitchTo("scratch")

	if err := r.Delete(DefaultName); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("Delete(chat) error = %v, want ErrInvalidArgument", err)
	}
	if err := r.Delete("scratch"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	// Deleting the active conversation falls back to the default.
	if r.Active() != DefaultName {
		t.Fatalf("Active = %q after delete, want chat", r.Active())
	}
	if err := r.Delete("scratch"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Delete() twice error = %v, want ErrNotFound", err)
	}
}

func TestRegistry_AppendAndHistory(t *testing.T) {
	repo := newMemoryRepo()
	r, _ := NewRegistry(repo)

	// Append creates lazily on first reference.
	for i, content := range []string{"one", "two", "three"} {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		if err := r.Append("notes", NewMessage(role, content)); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	all, err := r.History("notes", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	want := []string{"one", "two", "three"}
	got := make([]string, len(all))
	for i, m := range all {
		got[i] = m.Content
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("history mismatch (-want +got):\n%s", diff)
	}

	tail, _ := r.History("notes", 2)
	if len(tail) != 2 || tail[0].Content != "two" {
		t.Fatalf("History(2) = %+v", tail)
	}

	// Every append persisted.
	if repo.messageCount("notes") != 3 {
		t.Fatalf("durable messages = %d, want 3", repo.messageCount("notes"))
	}

	if _, err := r.History("ghost", 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("History(ghost) error = %v, want ErrNotFound", err)
	}
}

func TestRegistry_AppendPersistFailureRollsBack(t *testing.T) {
	repo := newMemoryRepo()
	r, _ := NewRegistry(repo)
	r.Append(DefaultName, NewMessage(RoleUser, "kept"))

	repo.mu.Lock()
	repo.failSave = true
	repo.mu.Unlock()

	if err := r.Append(DefaultName, NewMessage(RoleUser, "lost")); err == nil {
		t.Fatal("Append() error = nil, want persist failure")
	}
	msgs, _ := r.History(DefaultName, 0)
	if len(msgs) != 1 || msgs[0].Content != "kept" {
		t.Fatalf("history after failed append = %+v", msgs)
	}
}

func TestRegistry_AppendToActive(t *testing.T) {
	r, _ := NewRegistry(newMemoryRepo())
	r.Create("side")
	r.SwitchTo("side")

	if err := r.AppendToActive(NewMessage(RoleUser, "here")); err != nil {
		t.Fatalf("AppendToActive() error = %v", err)
	}
	msgs, _ := r.History("side", 0)
	if len(msgs) != 1 {
		t.Fatalf("active history = %d messages, want 1", len(msgs))
	}
	defMsgs, _ := r.History(DefaultName, 0)
	if len(defMsgs) != 0 {
		t.Fatal("append leaked into the default conversation")
	}
}

func TestRegistry_ListOrder(t *testing.T) {
	r, _ := NewRegistry(newMemoryRepo())
	r.Create("zeta")
	r.Create("alpha")
	r.SwitchTo("alpha")

	got := r.List()
	want := []Summary{
		{Name: DefaultName, IsDefault: true},
		{Name: "alpha", IsActive: true},
		{Name: "zeta"},
	}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(Summary{}, "MessageCount")); diff != "" {
		t.Fatalf("List mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistry_ReportToParent(t *testing.T) {
	repo := newMemoryRepo()
	r, _ := NewRegistry(repo)
	r.Create("migration")

	err := r.ReportToParent("migration", "migrated 4 services", "completed", []string{
		"two configs needed manual edits",
		"rollback plan unused",
	})
	if err != nil {
		t.Fatalf("ReportToParent() error = %v", err)
	}

	msgs, _ := r.History(DefaultName, 0)
	if len(msgs) != 1 {
		t.Fatalf("default history = %d messages, want 1", len(msgs))
	}
	m := msgs[0]
	if m.Role != RoleSystem {
		t.Fatalf("report Role = %q, want system", m.Role)
	}
	for _, want := range []string{
		"[report from migration]",
		"status=completed",
		"migrated 4 services",
		"- two configs needed manual edits",
	} {
		if !strings.Contains(m.Content, want) {
			t.Fatalf("report missing %q:\n%s", want, m.Content)
		}
	}

	// The report lands in the default conversation, not the child.
	childMsgs, _ := r.History("migration", 0)
	if len(childMsgs) != 0 {
		t.Fatal("report appended to the child conversation")
	}

	if err := r.ReportToParent(DefaultName, "s", "completed", nil); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("ReportToParent(chat) error = %v, want ErrInvalidArgument", err)
	}
	if err := r.ReportToParent("ghost", "s", "completed", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ReportToParent(ghost) error = %v, want ErrNotFound", err)
	}
}
