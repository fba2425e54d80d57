package project

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabbot/internal/cerr"
	"collabbot/internal/domain"
	"collabbot/internal/logutil"
	"collabbot/internal/storage"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	ctx     context.Context
	storage *storage.LocalStorage
	backend *FileBackend
	codec   Codec
	clock   *fakeClock
	cfg     Config
	store   *Store
}

func newHarness(t *testing.T, format string) *harness {
	t.Helper()
	ctx := context.Background()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	codec, err := CodecFor(format)
	require.NoError(t, err)

	clock := &fakeClock{now: time.Date(2025, 3, 1, 9, 30, 15, 123456789, time.UTC)}
	var seqMu sync.Mutex
	seq := 0
	cfg := Config{
		MaxAgentsPerProject:   3,
		MaxMessagesPerProject: 4,
		Now:                   clock.Now,
		NewID: func() string {
			seqMu.Lock()
			defer seqMu.Unlock()
			seq++
			return fmt.Sprintf("id-%03d", seq)
		},
	}
	h := &harness{
		ctx:     ctx,
		storage: s,
		backend: NewFileBackend(s, codec.Ext()),
		codec:   codec,
		clock:   clock,
		cfg:     cfg,
	}
	h.store = h.reopen(t)
	return h
}

func (h *harness) reopen(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(h.ctx, h.backend, h.codec, h.cfg, logutil.Discard())
	require.NoError(t, err)
	return store
}

func (h *harness) create(t *testing.T, owner, name string, agents ...string) domain.Project {
	t.Helper()
	p, err := h.store.Create(h.ctx, CreateInput{Owner: owner, Name: name, Description: "desc", Agents: agents})
	require.NoError(t, err)
	return p
}

func TestCreateGetList(t *testing.T) {
	h := newHarness(t, "json")
	p := h.create(t, "u1", "Alpha", "alpha", "beta", "alpha", " ")
	h.create(t, "u2", "Beta")
	h.create(t, "u1", "Gamma")

	assert.Equal(t, domain.ProjectStatusActive, p.Status)
	assert.Equal(t, []string{"alpha", "beta"}, p.AIAgents)
	assert.Empty(t, p.ConversationHistory)
	assert.Empty(t, p.Tasks)
	assert.Empty(t, p.Milestones)
	assert.Equal(t, h.clock.Now(), p.CreatedAt)

	got, err := h.store.Get(p.ID)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	owned := h.store.ListForOwner("u1")
	require.Len(t, owned, 2)
	assert.Equal(t, "Alpha", owned[0].Name)
	assert.Equal(t, "Gamma", owned[1].Name)
	assert.Empty(t, h.store.ListForOwner("nobody"))
	assert.Len(t, h.store.List(), 3)

	_, err = h.storage.Read(h.ctx, "projects/"+p.ID+".json")
	require.NoError(t, err)
}

type failingReads struct {
	storage.Storage
	err error
}

func (f failingReads) Read(context.Context, string) ([]byte, error) {
	return nil, f.err
}

func TestLoadClassifiesUnreadableRecords(t *testing.T) {
	h := newHarness(t, "json")
	h.create(t, "u1", "Alpha")

	tests := []struct {
		name string
		err  error
		code cerr.Code
	}{
		{"vanished", fmt.Errorf("projects/x.json: %w", storage.ErrNotFound), cerr.NotFound},
		{"denied", errors.New("permission denied"), cerr.Internal},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			backend := NewFileBackend(failingReads{Storage: h.storage, err: tc.err}, h.codec.Ext())
			_, err := NewStore(h.ctx, backend, h.codec, h.cfg, logutil.Discard())
			require.Error(t, err)
			assert.True(t, cerr.IsCode(err, tc.code), "got %v", err)
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestGetReturnsCopy(t *testing.T) {
	h := newHarness(t, "json")
	p := h.create(t, "u1", "Alpha", "alpha")

	p.AIAgents[0] = "mutated"
	got, err := h.store.Get(p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha"}, got.AIAgents)
}

func TestCreateValidation(t *testing.T) {
	h := newHarness(t, "json")

	_, err := h.store.Create(h.ctx, CreateInput{Owner: "u1", Name: "  "})
	assert.True(t, cerr.IsCode(err, cerr.InvalidArgument))

	_, err = h.store.Create(h.ctx, CreateInput{Owner: "u1", Name: "Big", Agents: []string{"a", "b", "c", "d"}})
	assert.True(t, cerr.IsCode(err, cerr.InvalidArgument))
	assert.Empty(t, h.store.List())
}

func TestGetUnknownProject(t *testing.T) {
	h := newHarness(t, "json")
	_, err := h.store.Get("missing")
	assert.True(t, cerr.IsCode(err, cerr.NotFound))

	_, err = h.store.AddTask(h.ctx, "missing", TaskInput{Title: "t"})
	assert.True(t, cerr.IsCode(err, cerr.NotFound))

	_, err = h.store.Stats("missing")
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
}

func TestRoundTrip(t *testing.T) {
	for _, format := range []string{"json", "yaml"} {
		t.Run(format, func(t *testing.T) {
			h := newHarness(t, format)
			p := h.create(t, "u1", "Alpha", "alpha", "beta")
			h.create(t, "u2", "Beta", "gamma")

			task, err := h.store.AddTask(h.ctx, p.ID, TaskInput{
				Title:             "Draft",
				Description:       "Write the first draft",
				Agents:            []string{"alpha"},
				Priority:          4,
				EstimatedDuration: 15,
			})
			require.NoError(t, err)
			_, err = h.store.AddTask(h.ctx, p.ID, TaskInput{Title: "Review", Agents: []string{"beta"}})
			require.NoError(t, err)

			h.clock.Advance(90 * time.Minute)
			require.NoError(t, h.store.CompleteTask(h.ctx, p.ID, task.ID, "draft done"))
			_, err = h.store.AddMilestone(h.ctx, p.ID, MilestoneInput{
				Title:   "v1",
				DueDate: time.Date(2025, 4, 1, 0, 0, 0, 0, time.FixedZone("CET", 3600)),
				Tasks:   []string{task.ID},
			})
			require.NoError(t, err)
			require.NoError(t, h.store.AppendMessages(h.ctx, p.ID,
				domain.Message{Sender: "u1", Content: "hello", Type: domain.MessageTypeUser},
				domain.Message{Sender: "collab", Content: "hi", Type: domain.MessageTypeCollaboration},
			))
			archived := domain.ProjectStatusArchived
			_, err = h.store.Update(h.ctx, p.ID, Update{Status: &archived})
			require.NoError(t, err)

			before := h.store.List()
			reloaded := h.reopen(t)
			after := reloaded.List()
			require.Len(t, after, 2)
			assert.Equal(t, before, after)

			got, err := reloaded.Get(p.ID)
			require.NoError(t, err)
			require.NotNil(t, got.Tasks[0].CompletedAt)
			assert.Equal(t, h.clock.Now(), *got.Tasks[0].CompletedAt)
			assert.Nil(t, got.Tasks[1].CompletedAt)
			assert.Equal(t, domain.ProjectStatusArchived, got.Status)
			assert.True(t, got.Milestones[0].DueDate.Equal(time.Date(2025, 3, 31, 23, 0, 0, 0, time.UTC)))
		})
	}
}

func TestLoadSkipsUndecodableRecords(t *testing.T) {
	h := newHarness(t, "json")
	p := h.create(t, "u1", "Alpha")
	require.NoError(t, h.storage.Write(h.ctx, "projects/broken.json", []byte("{not json")))
	require.NoError(t, h.storage.Write(h.ctx, "projects/anon.json", []byte(`{"name":"no id"}`)))
	require.NoError(t, h.storage.Write(h.ctx, "projects/notes.txt", []byte("ignored")))

	reloaded := h.reopen(t)
	all := reloaded.List()
	require.Len(t, all, 1)
	assert.Equal(t, p.ID, all[0].ID)
}

func TestCompleteUnknownTaskLeavesProjectUnchanged(t *testing.T) {
	h := newHarness(t, "json")
	p := h.create(t, "u1", "Alpha")
	_, err := h.store.AddTask(h.ctx, p.ID, TaskInput{Title: "t"})
	require.NoError(t, err)

	before, err := h.store.Get(p.ID)
	require.NoError(t, err)
	raw, err := h.storage.Read(h.ctx, "projects/"+p.ID+".json")
	require.NoError(t, err)

	h.clock.Advance(time.Hour)
	err = h.store.CompleteTask(h.ctx, p.ID, "no-such-task", "result")
	require.Error(t, err)
	assert.True(t, cerr.IsCode(err, cerr.NotFound))

	after, err := h.store.Get(p.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	rawAfter, err := h.storage.Read(h.ctx, "projects/"+p.ID+".json")
	require.NoError(t, err)
	assert.Equal(t, raw, rawAfter)
}

func TestMutatingUnknownProjectsKeepsNoLocks(t *testing.T) {
	h := newHarness(t, "json")
	p := h.create(t, "u1", "Alpha")

	for i := 0; i < 100; i++ {
		id := fmt.Sprintf("ghost-%d", i)
		err := h.store.CompleteTask(h.ctx, id, "t", "r")
		assert.True(t, cerr.IsCode(err, cerr.NotFound), id)
		_, err = h.store.AddTask(h.ctx, id, TaskInput{Title: "t"})
		assert.True(t, cerr.IsCode(err, cerr.NotFound), id)
		name := "x"
		_, err = h.store.Update(h.ctx, id, Update{Name: &name})
		assert.True(t, cerr.IsCode(err, cerr.NotFound), id)
	}

	_, err := h.store.AddTask(h.ctx, p.ID, TaskInput{Title: "real"})
	require.NoError(t, err)

	h.store.locksMu.Lock()
	defer h.store.locksMu.Unlock()
	assert.Len(t, h.store.locks, 1)
	assert.Contains(t, h.store.locks, p.ID)
}

func TestStats(t *testing.T) {
	h := newHarness(t, "json")
	p := h.create(t, "u1", "Alpha", "alpha", "beta")

	stats, err := h.store.Stats(p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectStats{AgentCount: 2}, stats)

	t1, err := h.store.AddTask(h.ctx, p.ID, TaskInput{Title: "one"})
	require.NoError(t, err)
	_, err = h.store.AddTask(h.ctx, p.ID, TaskInput{Title: "two"})
	require.NoError(t, err)
	require.NoError(t, h.store.CompleteTask(h.ctx, p.ID, t1.ID, "ok"))
	require.NoError(t, h.store.AppendMessages(h.ctx, p.ID, domain.Message{Sender: "u1", Content: "x"}))
	h.clock.Advance(3*24*time.Hour + time.Hour)

	stats, err = h.store.Stats(p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalTasks)
	assert.Equal(t, 1, stats.CompletedTasks)
	assert.InDelta(t, 50.0, stats.CompletionRate, 1e-9)
	assert.Equal(t, 1, stats.TotalMessages)
	assert.Equal(t, 3, stats.DaysActive)
}

func TestAppendMessagesTrimsOldest(t *testing.T) {
	h := newHarness(t, "json")
	p := h.create(t, "u1", "Alpha")
	for i := 0; i < 6; i++ {
		require.NoError(t, h.store.AppendMessages(h.ctx, p.ID, domain.Message{Sender: "u1", Content: fmt.Sprintf("m%d", i)}))
	}
	got, err := h.store.Get(p.ID)
	require.NoError(t, err)
	require.Len(t, got.ConversationHistory, 4)
	assert.Equal(t, "m2", got.ConversationHistory[0].Content)
	assert.Equal(t, "m5", got.ConversationHistory[3].Content)
	assert.Equal(t, h.clock.Now(), got.ConversationHistory[3].Timestamp)
}

func TestUpdate(t *testing.T) {
	h := newHarness(t, "json")
	p := h.create(t, "u1", "Alpha", "alpha")
	h.clock.Advance(time.Minute)

	name := "Renamed"
	agents := []string{"beta", "gamma"}
	updated, err := h.store.Update(h.ctx, p.ID, Update{Name: &name, Agents: &agents})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, agents, updated.AIAgents)
	assert.Equal(t, h.clock.Now(), updated.LastUpdated)
	assert.Equal(t, p.CreatedAt, updated.CreatedAt)

	bogus := domain.ProjectStatus("deleted")
	_, err = h.store.Update(h.ctx, p.ID, Update{Status: &bogus})
	assert.True(t, cerr.IsCode(err, cerr.InvalidArgument))

	tooMany := []string{"a", "b", "c", "d"}
	_, err = h.store.Update(h.ctx, p.ID, Update{Agents: &tooMany})
	assert.True(t, cerr.IsCode(err, cerr.InvalidArgument))

	got, err := h.store.Get(p.ID)
	require.NoError(t, err)
	assert.Equal(t, updated, got)
}

type failingBackend struct {
	Backend
	fail bool
}

func (b *failingBackend) Write(ctx context.Context, id string, data []byte) error {
	if b.fail {
		return errors.New("disk full")
	}
	return b.Backend.Write(ctx, id, data)
}

func TestPersistenceFailureIsSurfaced(t *testing.T) {
	h := newHarness(t, "json")
	fb := &failingBackend{Backend: h.backend}
	store, err := NewStore(h.ctx, fb, h.codec, h.cfg, logutil.Discard())
	require.NoError(t, err)

	p, err := store.Create(h.ctx, CreateInput{Owner: "u1", Name: "Alpha"})
	require.NoError(t, err)

	fb.fail = true
	_, err = store.Create(h.ctx, CreateInput{Owner: "u1", Name: "Beta"})
	require.Error(t, err)
	assert.True(t, cerr.IsCode(err, cerr.Internal))
	assert.Len(t, store.List(), 1)

	_, err = store.AddTask(h.ctx, p.ID, TaskInput{Title: "t"})
	require.Error(t, err)
	got, err := store.Get(p.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Tasks)
}

func TestConcurrentAddTask(t *testing.T) {
	h := newHarness(t, "json")
	p := h.create(t, "u1", "Alpha")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.store.AddTask(h.ctx, p.ID, TaskInput{Title: fmt.Sprintf("t%d", i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := h.store.Get(p.ID)
	require.NoError(t, err)
	assert.Len(t, got.Tasks, 20)

	reloaded := h.reopen(t)
	got, err = reloaded.Get(p.ID)
	require.NoError(t, err)
	assert.Len(t, got.Tasks, 20)
}

func TestCodecFor(t *testing.T) {
	c, err := CodecFor("YAML")
	require.NoError(t, err)
	assert.Equal(t, "yaml", c.Ext())
	_, err = CodecFor("xml")
	assert.Error(t, err)
}
