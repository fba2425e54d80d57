package sqlite

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"collabbot/internal/domain"
	"collabbot/internal/logutil"
	"collabbot/internal/project"
)

func TestProjectRecordsUpsert(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	if err := store.Write(ctx, "p1", []byte(`{"id":"p1","name":"one"}`)); err != nil {
		t.Fatalf("write p1: %v", err)
	}
	if err := store.Write(ctx, "p2", []byte(`{"id":"p2"}`)); err != nil {
		t.Fatalf("write p2: %v", err)
	}
	if err := store.Write(ctx, "p1", []byte(`{"id":"p1","name":"renamed"}`)); err != nil {
		t.Fatalf("rewrite p1: %v", err)
	}
	if err := store.Write(ctx, " ", []byte(`{}`)); err == nil {
		t.Fatalf("expected error for empty id")
	}

	records, err := store.ReadAll(ctx)
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	byKey := map[string]string{}
	for _, rec := range records {
		byKey[rec.Key] = string(rec.Data)
	}
	if byKey["p1"] != `{"id":"p1","name":"renamed"}` {
		t.Fatalf("unexpected p1 data: %s", byKey["p1"])
	}
}

func TestProjectStoreOverSQLite(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "projects.db")
	store := openAt(t, dbPath)

	projects, err := project.NewStore(ctx, store, project.JSONCodec{}, project.Config{}, logutil.Discard())
	if err != nil {
		t.Fatalf("new project store: %v", err)
	}
	p, err := projects.Create(ctx, project.CreateInput{Owner: "u1", Name: "Alpha", Agents: []string{"alpha"}})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	task, err := projects.AddTask(ctx, p.ID, project.TaskInput{Title: "Draft", Agents: []string{"alpha"}})
	if err != nil {
		t.Fatalf("add task: %v", err)
	}
	if err := projects.CompleteTask(ctx, p.ID, task.ID, "done"); err != nil {
		t.Fatalf("complete task: %v", err)
	}
	want, err := projects.Get(p.ID)
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	store.Close()

	reopened := openAt(t, dbPath)
	defer reopened.Close()
	reloaded, err := project.NewStore(ctx, reopened, project.JSONCodec{}, project.Config{}, logutil.Discard())
	if err != nil {
		t.Fatalf("reload project store: %v", err)
	}
	got, err := reloaded.Get(p.ID)
	if err != nil {
		t.Fatalf("get reloaded project: %v", err)
	}
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("reloaded project differs:\nwant %+v\ngot  %+v", want, got)
	}
}

func TestContributionsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	roundID := uuid.NewString()
	base := time.Date(2025, 5, 1, 12, 0, 0, 987654321, time.UTC)
	entries := []domain.AgentContribution{
		{
			AgentName:    "alpha",
			Role:         "Analyst",
			Contribution: "first",
			Confidence:   0.8,
			Timestamp:    base,
			Metadata:     map[string]string{"round_id": roundID, "task_id": roundID + "/task_0"},
		},
		{
			AgentName:    "beta",
			Role:         "Reviewer",
			Contribution: "second",
			Confidence:   0.6,
			Timestamp:    base.Add(1500 * time.Millisecond),
		},
	}
	for _, c := range entries {
		if err := store.AppendContribution(ctx, "p1", c); err != nil {
			t.Fatalf("append contribution: %v", err)
		}
	}
	if err := store.AppendContribution(ctx, "p2", entries[1]); err != nil {
		t.Fatalf("append contribution p2: %v", err)
	}

	loaded, err := store.LoadContributions(ctx)
	if err != nil {
		t.Fatalf("load contributions: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 projects, got %d", len(loaded))
	}
	if !reflect.DeepEqual(entries, loaded["p1"]) {
		t.Fatalf("p1 contributions differ:\nwant %+v\ngot  %+v", entries, loaded["p1"])
	}

}

func openAt(t *testing.T, dbPath string) *Store {
	t.Helper()
	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		store.Close()
		t.Fatalf("migrate store: %v", err)
	}
	return store
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return openAt(t, filepath.Join(t.TempDir(), "test.db"))
}
