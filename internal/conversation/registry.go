package conversation

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"animus/internal/logging"
)

// Registry owns the set of conversations and the "which history is
// active" switch. Switching changes only where subsequent appends go;
// shared workspace state is owned elsewhere.
type Registry struct {
	mu sync.RWMutex

	repo   Repository
	convos map[string]*Conversation
	active string
}

// NewRegistry loads persisted conversations and ensures the default
// conversation exists. The default is created exactly once, at first
// workspace load.
func NewRegistry(repo Repository) (*Registry, error) {
	r := &Registry{
		repo:   repo,
		convos: make(map[string]*Conversation),
		active: DefaultName,
	}

	loaded, err := repo.Load()
	if err != nil {
		return nil, fmt.Errorf("loading conversations: %w", err)
	}
	for _, c := range loaded {
		r.convos[c.Name] = c
	}

	if _, ok := r.convos[DefaultName]; !ok {
		now := time.Now().UTC()
		def := &Conversation{
			Name:      DefaultName,
			IsDefault: true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := repo.Save(def); err != nil {
			return nil, fmt.Errorf("creating default conversation: %w", err)
		}
		r.convos[DefaultName] = def
		logging.Conversation("Created default conversation %q", DefaultName)
	}

	logging.Conversation("Registry loaded with %d conversations", len(r.convos))
	return r, nil
}

// Create adds a new named conversation. The name must be non-empty and
// not taken.
func (r *Registry) Create(name string) (*Conversation, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: name must not be empty", ErrInvalidArgument)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.convos[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, name)
	}

	c, err := r.createLocked(name)
	if err != nil {
		return nil, err
	}
	return c.clone(), nil
}

// createLocked builds and persists a non-default conversation.
// Caller holds r.mu.
func (r *Registry) createLocked(name string) (*Conversation, error) {
	now := time.Now().UTC()
	c := &Conversation{
		Name:       name,
		ParentName: DefaultName,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := r.repo.Save(c); err != nil {
		return nil, fmt.Errorf("persisting conversation: %w", err)
	}
	r.convos[name] = c
	logging.Conversation("Created conversation %q", name)
	return c, nil
}

// SwitchTo makes the named conversation the active one. It never
// creates the conversation.
func (r *Registry) SwitchTo(name string) (*Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.convos[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	r.active = name
	logging.ConversationDebug("Switched active conversation to %q", name)
	return c.clone(), nil
}

// Delete removes a conversation. Deleting the default always fails.
func (r *Registry) Delete(name string) error {
	if name == DefaultName {
		return fmt.Errorf("%w: cannot delete the default conversation", ErrInvalidArgument)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.convos[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err := r.repo.Delete(name); err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	delete(r.convos, name)
	if r.active == name {
		r.active = DefaultName
	}
	logging.Conversation("Deleted conversation %q", name)
	return nil
}

// Append adds a message to the named conversation, creating it lazily
// on first reference. Every append persists the conversation record.
func (r *Registry) Append(name string, msg Message) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name must not be empty", ErrInvalidArgument)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.convos[name]
	if !ok {
		var err error
		c, err = r.createLocked(name)
		if err != nil {
			return err
		}
	}

	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = time.Now().UTC()
	if err := r.repo.Save(c); err != nil {
		c.Messages = c.Messages[:len(c.Messages)-1]
		return fmt.Errorf("persisting message: %w", err)
	}
	return nil
}

// AppendToActive adds a message to whichever conversation is active.
func (r *Registry) AppendToActive(msg Message) error {
	r.mu.RLock()
	name := r.active
	r.mu.RUnlock()
	return r.Append(name, msg)
}

// Active returns the name of the active conversation.
func (r *Registry) Active() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Get returns a snapshot of the named conversation.
func (r *Registry) Get(name string) (*Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.convos[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return c.clone(), nil
}

// History returns up to limit of the most recent messages in the named
// conversation. limit <= 0 returns everything.
func (r *Registry) History(name string, limit int) ([]Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.convos[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	msgs := c.Messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]Message(nil), msgs...), nil
}

// List returns summaries of all conversations, default first, then by
// name.
func (r *Registry) List() []Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Summary, 0, len(r.convos))
	for _, c := range r.convos {
		out = append(out, Summary{
			Name:         c.Name,
			MessageCount: len(c.Messages),
			IsActive:     c.Name == r.active,
			IsDefault:    c.IsDefault,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsDefault != out[j].IsDefault {
			return out[i].IsDefault
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// ReportToParent appends a structured system-level entry to the default
// conversation summarizing a child conversation's outcome. Reporting
// from the default conversation is an error.
func (r *Registry) ReportToParent(fromName, summary, status string, keyFindings []string) error {
	if fromName == DefaultName {
		return fmt.Errorf("%w: the default conversation has no parent", ErrInvalidArgument)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.convos[fromName]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, fromName)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[report from %s] status=%s\n%s", fromName, status, summary)
	for _, finding := range keyFindings {
		fmt.Fprintf(&b, "\n- %s", finding)
	}

	def := r.convos[DefaultName]
	def.Messages = append(def.Messages, NewMessage(RoleSystem, b.String()))
	def.UpdatedAt = time.Now().UTC()
	if err := r.repo.Save(def); err != nil {
		def.Messages = def.Messages[:len(def.Messages)-1]
		return fmt.Errorf("persisting report: %w", err)
	}

	logging.Conversation("Conversation %q reported to parent (status=%s)", fromName, status)
	return nil
}
