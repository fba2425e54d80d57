package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"collabbot/internal/domain"
	"collabbot/internal/project"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	data TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS contributions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id TEXT NOT NULL,
	round_id TEXT NOT NULL DEFAULT '',
	agent_name TEXT NOT NULL,
	role TEXT NOT NULL,
	contribution TEXT NOT NULL,
	confidence REAL NOT NULL,
	metadata TEXT NOT NULL,
	created_at_ns INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_contributions_project ON contributions(project_id, id);
CREATE INDEX IF NOT EXISTS idx_contributions_round ON contributions(round_id);
`

type Store struct {
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set sqlite pragma %q: %w", stmt, err)
		}
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// Write upserts the encoded project record.
func (s *Store) Write(ctx context.Context, id string, data []byte) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("write project: empty id")
	}
	now := time.Now().UTC().Unix()
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO projects(id, data, created_at, updated_at) VALUES(?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		id, string(data), now, now,
	)
	if err != nil {
		return fmt.Errorf("write project %s: %w", id, err)
	}
	return nil
}

func (s *Store) ReadAll(ctx context.Context) ([]project.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, data FROM projects ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	result := make([]project.Record, 0)
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		result = append(result, project.Record{Key: id, Data: []byte(data)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return result, nil
}

func (s *Store) AppendContribution(ctx context.Context, projectID string, c domain.AgentContribution) error {
	metadata := "{}"
	if len(c.Metadata) > 0 {
		raw, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("marshal contribution metadata: %w", err)
		}
		metadata = string(raw)
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO contributions(
			project_id, round_id, agent_name, role, contribution, confidence, metadata, created_at_ns
		) VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		projectID, c.Metadata["round_id"], c.AgentName, c.Role, c.Contribution, c.Confidence,
		metadata, c.Timestamp.UTC().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("append contribution: %w", err)
	}
	return nil
}

// LoadContributions returns every contribution grouped by project, each
// group in append order.
func (s *Store) LoadContributions(ctx context.Context) (map[string][]domain.AgentContribution, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT project_id, agent_name, role, contribution, confidence, metadata, created_at_ns
		FROM contributions ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list contributions: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]domain.AgentContribution)
	for rows.Next() {
		var projectID, metadata string
		var createdAt int64
		var c domain.AgentContribution
		if err := rows.Scan(&projectID, &c.AgentName, &c.Role, &c.Contribution, &c.Confidence, &metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("scan contribution: %w", err)
		}
		if metadata != "" && metadata != "{}" {
			if err := json.Unmarshal([]byte(metadata), &c.Metadata); err != nil {
				return nil, fmt.Errorf("decode contribution metadata: %w", err)
			}
		}
		c.Timestamp = nanosToTime(createdAt)
		result[projectID] = append(result[projectID], c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contributions: %w", err)
	}
	return result, nil
}

func nanosToTime(v int64) time.Time {
	return time.Unix(0, v).UTC()
}
