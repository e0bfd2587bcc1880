package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"animus/internal/conversation"
	"animus/internal/schedule"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "animus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_OpenCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "animus.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	require.FileExists(t, path)
}

func TestScheduleRepo_SaveAllAndLoad(t *testing.T) {
	s := openTestStore(t)
	repo := s.Schedules()

	last := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	in := []*schedule.Schedule{
		{
			ID:            "s1",
			Name:          "daily-digest",
			Query:         "summarize the day",
			Interval:      24 * time.Hour,
			SkipIfRunning: true,
			Status:        schedule.StatusActive,
			RunCount:      3,
			LastRunAt:     &last,
			LastTaskID:    "task-9",
			Tags:          []string{"news", "daily"},
			NextRunAt:     last.Add(24 * time.Hour),
			CreatedAt:     last.Add(-72 * time.Hour),
		},
		{
			ID:       "s2",
			Name:     "hourly-check",
			Query:    "check the queue",
			Interval: time.Hour,
			Status:   schedule.StatusPaused,
		},
	}
	require.NoError(t, repo.SaveAll(in))

	out, err := repo.Load()
	require.NoError(t, err)
	require.Len(t, out, 2)

	byID := map[string]*schedule.Schedule{out[0].ID: out[0], out[1].ID: out[1]}
	got := byID["s1"]
	require.NotNil(t, got)
	assert.Equal(t, "daily-digest", got.Name)
	assert.Equal(t, 24*time.Hour, got.Interval)
	assert.Equal(t, 3, got.RunCount)
	assert.Equal(t, "task-9", got.LastTaskID)
	assert.Equal(t, []string{"news", "daily"}, got.Tags)
	require.NotNil(t, got.LastRunAt)
	assert.True(t, got.LastRunAt.Equal(last))
	assert.Equal(t, schedule.StatusPaused, byID["s2"].Status)
}

func TestScheduleRepo_SaveAllRewrites(t *testing.T) {
	s := openTestStore(t)
	repo := s.Schedules()

	require.NoError(t, repo.SaveAll([]*schedule.Schedule{
		{ID: "a", Name: "a", Query: "q", Interval: time.Hour, Status: schedule.StatusActive},
		{ID: "b", Name: "b", Query: "q", Interval: time.Hour, Status: schedule.StatusActive},
	}))
	require.NoError(t, repo.SaveAll([]*schedule.Schedule{
		{ID: "b", Name: "b-renamed", Query: "q", Interval: time.Hour, Status: schedule.StatusActive},
	}))

	out, err := repo.Load()
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "b", out[0].ID)
	assert.Equal(t, "b-renamed", out[0].Name)

	// Rewriting to empty clears the set.
	require.NoError(t, repo.SaveAll(nil))
	out, err = repo.Load()
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestConversationRepo_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	repo := s.Conversations()

	c := &conversation.Conversation{
		Name:      "chat",
		IsDefault: true,
		Messages: []conversation.Message{
			conversation.NewMessage(conversation.RoleUser, "hi"),
			conversation.NewMessage(conversation.RoleAssistant, "hello"),
		},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.Save(c))

	out, err := repo.Load()
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "chat", out[0].Name)
	assert.True(t, out[0].IsDefault)
	require.Len(t, out[0].Messages, 2)
	assert.Equal(t, "hi", out[0].Messages[0].Content)
	assert.Equal(t, conversation.RoleAssistant, out[0].Messages[1].Role)
}

func TestConversationRepo_SaveUpserts(t *testing.T) {
	s := openTestStore(t)
	repo := s.Conversations()

	c := &conversation.Conversation{Name: "notes"}
	require.NoError(t, repo.Save(c))

	c.Messages = append(c.Messages, conversation.NewMessage(conversation.RoleUser, "added"))
	require.NoError(t, repo.Save(c))

	out, err := repo.Load()
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Len(t, out[0].Messages, 1)
}

func TestConversationRepo_Delete(t *testing.T) {
	s := openTestStore(t)
	repo := s.Conversations()

	require.NoError(t, repo.Save(&conversation.Conversation{Name: "gone"}))
	require.NoError(t, repo.Delete("gone"))
	require.NoError(t, repo.Delete("gone")) // idempotent

	out, err := repo.Load()
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "animus.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Schedules().SaveAll([]*schedule.Schedule{
		{ID: "keep", Name: "keep", Query: "q", Interval: time.Minute, Status: schedule.StatusActive},
	}))
	require.NoError(t, s.Conversations().Save(&conversation.Conversation{Name: "chat", IsDefault: true}))
	require.NoError(t, s.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	scheds, err := s2.Schedules().Load()
	require.NoError(t, err)
	require.Len(t, scheds, 1)
	assert.Equal(t, "keep", scheds[0].ID)

	convos, err := s2.Conversations().Load()
	require.NoError(t, err)
	require.Len(t, convos, 1)
	assert.True(t, convos[0].IsDefault)
}
