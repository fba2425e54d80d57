package collab

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"collabbot/internal/domain"
)

// Sink durably records contributions as they are appended.
type Sink interface {
	AppendContribution(ctx context.Context, projectID string, c domain.AgentContribution) error
}

// Source supplies previously recorded contributions grouped by project.
type Source interface {
	LoadContributions(ctx context.Context) (map[string][]domain.AgentContribution, error)
}

// Ledger is the append-only record of agent contributions per project.
type Ledger struct {
	mu      sync.RWMutex
	entries map[string][]domain.AgentContribution
	logger  *slog.Logger

	// sinkMu is taken before mu is released so sink writes keep append order.
	sinkMu sync.Mutex
	sink   Sink
}

func NewLedger(sink Sink, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		entries: make(map[string][]domain.AgentContribution),
		sink:    sink,
		logger:  logger,
	}
}

// Restore replaces the in-memory entries with those held by src.
func (l *Ledger) Restore(ctx context.Context, src Source) error {
	loaded, err := src.LoadContributions(ctx)
	if err != nil {
		return err
	}
	entries := make(map[string][]domain.AgentContribution, len(loaded))
	total := 0
	for projectID, list := range loaded {
		entries[projectID] = append([]domain.AgentContribution(nil), list...)
		total += len(list)
	}

	l.mu.Lock()
	l.entries = entries
	l.mu.Unlock()
	l.logger.Info("contribution ledger restored", "projects", len(entries), "contributions", total)
	return nil
}

// Append records c for projectID. Readers see the entry before the sink
// write finishes. A sink failure is logged; the in-memory entry is kept so
// the running round still sees it.
func (l *Ledger) Append(ctx context.Context, projectID string, c domain.AgentContribution) {
	c.Metadata = cloneMetadata(c.Metadata)

	l.mu.Lock()
	l.entries[projectID] = append(l.entries[projectID], c)
	if l.sink == nil {
		l.mu.Unlock()
		return
	}
	l.sinkMu.Lock()
	l.mu.Unlock()
	defer l.sinkMu.Unlock()

	if err := l.sink.AppendContribution(ctx, projectID, c); err != nil {
		l.logger.Warn("persist contribution failed",
			"project_id", projectID,
			"agent", c.AgentName,
			"error", err,
		)
	}
}

func (l *Ledger) Contributions(projectID string) []domain.AgentContribution {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return copyContributions(l.entries[projectID], func(domain.AgentContribution) bool { return true })
}

// Round returns the contributions of projectID recorded under roundID.
func (l *Ledger) Round(projectID, roundID string) []domain.AgentContribution {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return copyContributions(l.entries[projectID], func(c domain.AgentContribution) bool {
		return c.Metadata["round_id"] == roundID
	})
}

func (l *Ledger) Len(projectID string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries[projectID])
}

// Stats aggregates the contributions of projectID. Roles are listed in the
// order they were first seen.
func (l *Ledger) Stats(projectID string) domain.CollaborationStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	list := l.entries[projectID]
	if len(list) == 0 {
		return domain.CollaborationStats{}
	}

	type acc struct {
		count      int
		confidence float64
		roles      []string
	}
	per := make(map[string]*acc)
	first, last := list[0].Timestamp, list[0].Timestamp
	for _, c := range list {
		a, ok := per[c.AgentName]
		if !ok {
			a = &acc{}
			per[c.AgentName] = a
		}
		a.count++
		a.confidence += c.Confidence
		if !slices.Contains(a.roles, c.Role) {
			a.roles = append(a.roles, c.Role)
		}
		if c.Timestamp.Before(first) {
			first = c.Timestamp
		}
		if c.Timestamp.After(last) {
			last = c.Timestamp
		}
	}

	stats := domain.CollaborationStats{
		TotalContributions: len(list),
		UniqueAgents:       len(per),
		AgentStats:         make(map[string]domain.AgentStats, len(per)),
	}
	if len(list) > 1 {
		stats.Duration = last.Sub(first)
	}
	for name, a := range per {
		stats.AgentStats[name] = domain.AgentStats{
			Contributions: a.count,
			AvgConfidence: a.confidence / float64(a.count),
			Roles:         a.roles,
		}
	}
	return stats
}

func copyContributions(in []domain.AgentContribution, keep func(domain.AgentContribution) bool) []domain.AgentContribution {
	out := make([]domain.AgentContribution, 0, len(in))
	for _, c := range in {
		if !keep(c) {
			continue
		}
		c.Metadata = cloneMetadata(c.Metadata)
		out = append(out, c)
	}
	return out
}

func cloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
