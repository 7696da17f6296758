package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/okian/scorepipe/internal/domain/model"
	"github.com/okian/scorepipe/internal/domain/types"
)

// Memory implements every store interface in process. Documents are copied
// on the way in and out so callers cannot mutate stored state.
type Memory struct {
	mu sync.RWMutex

	scores    map[string]*model.ScoreDocument
	blacklist map[string]map[string]struct{}

	goals map[string]*model.Goal
	subs  map[string]*model.GoalSubscription // goalID/userID
	bulks int

	orphanScores map[string]*model.OrphanScore
	orphanCharts map[string]*model.OrphanChart
}

var (
	_ ScoreStore     = (*Memory)(nil)
	_ BlacklistStore = (*Memory)(nil)
	_ GoalStore      = (*Memory)(nil)
	_ OrphanStore    = (*Memory)(nil)
)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		scores:       make(map[string]*model.ScoreDocument),
		blacklist:    make(map[string]map[string]struct{}),
		goals:        make(map[string]*model.Goal),
		subs:         make(map[string]*model.GoalSubscription),
		orphanScores: make(map[string]*model.OrphanScore),
		orphanCharts: make(map[string]*model.OrphanChart),
	}
}

// Exists implements ScoreStore.
func (m *Memory) Exists(_ context.Context, scoreID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.scores[scoreID]
	return ok, nil
}

// Insert implements ScoreStore.
func (m *Memory) Insert(_ context.Context, doc *model.ScoreDocument) (bool, error) {
	if doc == nil || doc.ScoreID == "" {
		return false, ErrInvalidDocument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.scores[doc.ScoreID]; ok {
		return false, nil
	}
	cp := *doc
	m.scores[doc.ScoreID] = &cp
	return true, nil
}

// InsertMany implements ScoreStore.
func (m *Memory) InsertMany(_ context.Context, docs []*model.ScoreDocument) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inserted := make([]string, 0, len(docs))
	for _, doc := range docs {
		if doc == nil || doc.ScoreID == "" {
			return inserted, ErrInvalidDocument
		}
		if _, ok := m.scores[doc.ScoreID]; ok {
			continue
		}
		cp := *doc
		m.scores[doc.ScoreID] = &cp
		inserted = append(inserted, doc.ScoreID)
	}
	return inserted, nil
}

// FindByUserCharts implements ScoreStore.
func (m *Memory) FindByUserCharts(_ context.Context, userID string, chartIDs []string) ([]*model.ScoreDocument, error) {
	want := toSet(chartIDs)
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.ScoreDocument
	for _, s := range m.scores {
		if s.UserID != userID {
			continue
		}
		if _, ok := want[s.ChartID]; !ok {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScoreID < out[j].ScoreID })
	return out, nil
}

// ScoreCount returns the number of stored scores.
func (m *Memory) ScoreCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.scores)
}

// Blacklist implements BlacklistStore.
func (m *Memory) Blacklist(_ context.Context, userID string) (map[string]struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]struct{}, len(m.blacklist[userID]))
	for id := range m.blacklist[userID] {
		out[id] = struct{}{}
	}
	return out, nil
}

// AddToBlacklist implements BlacklistStore.
func (m *Memory) AddToBlacklist(_ context.Context, userID, scoreID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.blacklist[userID] == nil {
		m.blacklist[userID] = make(map[string]struct{})
	}
	m.blacklist[userID][scoreID] = struct{}{}
	return nil
}

func subKey(goalID, userID string) string { return goalID + "/" + userID }

// PutGoal implements GoalStore.
func (m *Memory) PutGoal(_ context.Context, goal *model.Goal) error {
	if goal == nil || goal.GoalID == "" {
		return ErrInvalidDocument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *goal
	m.goals[goal.GoalID] = &cp
	return nil
}

// PutSubscription implements GoalStore.
func (m *Memory) PutSubscription(_ context.Context, sub *model.GoalSubscription) error {
	if sub == nil || sub.GoalID == "" || sub.UserID == "" {
		return ErrInvalidDocument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *sub
	m.subs[subKey(sub.GoalID, sub.UserID)] = &cp
	return nil
}

// GoalsForCharts implements GoalStore.
func (m *Memory) GoalsForCharts(_ context.Context, game types.Game, chartIDs, folderIDs []string) ([]*model.Goal, error) {
	charts, folders := toSet(chartIDs), toSet(folderIDs)
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Goal
	for _, g := range m.goals {
		if g.Game != game {
			continue
		}
		set := charts
		if g.Charts.Type == model.GoalChartsFolder {
			set = folders
		}
		for _, id := range g.Charts.Data {
			if _, ok := set[id]; ok {
				cp := *g
				out = append(out, &cp)
				break
			}
		}
	}
	sortGoals(out)
	return out, nil
}

// GoalsInFolder implements GoalStore.
func (m *Memory) GoalsInFolder(_ context.Context, folderID string) ([]*model.Goal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Goal
	for _, g := range m.goals {
		if g.Charts.Type == model.GoalChartsFolder && len(g.Charts.Data) > 0 && g.Charts.Data[0] == folderID {
			cp := *g
			out = append(out, &cp)
		}
	}
	sortGoals(out)
	return out, nil
}

// SubscriptionsFor implements GoalStore.
func (m *Memory) SubscriptionsFor(_ context.Context, userID string, goalIDs []string) ([]*model.GoalSubscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.GoalSubscription
	for _, id := range goalIDs {
		if s, ok := m.subs[subKey(id, userID)]; ok {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

// SubscriptionsForGoals implements GoalStore.
func (m *Memory) SubscriptionsForGoals(_ context.Context, goalIDs []string) ([]*model.GoalSubscription, error) {
	want := toSet(goalIDs)
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.GoalSubscription
	for _, s := range m.subs {
		if _, ok := want[s.GoalID]; ok {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return subKey(out[i].GoalID, out[i].UserID) < subKey(out[j].GoalID, out[j].UserID)
	})
	return out, nil
}

// BulkUpdateSubscriptions implements GoalStore.
func (m *Memory) BulkUpdateSubscriptions(_ context.Context, subs []*model.GoalSubscription) error {
	if len(subs) == 0 {
		return ErrEmptyBulkWrite
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range subs {
		cp := *s
		m.subs[subKey(s.GoalID, s.UserID)] = &cp
	}
	m.bulks++
	return nil
}

// BulkWrites returns how many bulk subscription writes were made.
func (m *Memory) BulkWrites() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bulks
}

// PutOrphanScore implements OrphanStore.
func (m *Memory) PutOrphanScore(_ context.Context, s *model.OrphanScore) (bool, error) {
	if s == nil || s.OrphanID == "" {
		return false, ErrInvalidDocument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orphanScores[s.OrphanID]; ok {
		return false, nil
	}
	cp := *s
	m.orphanScores[s.OrphanID] = &cp
	return true, nil
}

// AttachUser implements OrphanStore.
func (m *Memory) AttachUser(_ context.Context, chart *model.OrphanChart, userID string) (int, error) {
	if chart == nil || chart.Fingerprint == "" {
		return 0, ErrInvalidDocument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.orphanCharts[chart.Fingerprint]
	if !ok {
		cp := *chart
		cp.UserIDs = nil
		existing = &cp
		m.orphanCharts[chart.Fingerprint] = existing
	}
	for _, u := range existing.UserIDs {
		if u == userID {
			return len(existing.UserIDs), nil
		}
	}
	existing.UserIDs = append(existing.UserIDs, userID)
	return len(existing.UserIDs), nil
}

// GetOrphanChart implements OrphanStore.
func (m *Memory) GetOrphanChart(_ context.Context, fingerprint string) (*model.OrphanChart, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.orphanCharts[fingerprint]
	if !ok {
		return nil, fmt.Errorf("%w: orphan chart %s", ErrNotFound, fingerprint)
	}
	return copyOrphanChart(c), nil
}

// ClaimOrphanChart implements OrphanStore.
func (m *Memory) ClaimOrphanChart(_ context.Context, fingerprint string) (*model.OrphanChart, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.orphanCharts[fingerprint]
	if !ok {
		return nil, false, nil
	}
	delete(m.orphanCharts, fingerprint)
	return c, true, nil
}

// OrphanScoresFor implements OrphanStore.
func (m *Memory) OrphanScoresFor(ctx context.Context, fingerprint string) ([]*model.OrphanScore, error) {
	return m.ListOrphanScores(ctx, OrphanFilter{Fingerprint: fingerprint})
}

// ListOrphanScores implements OrphanStore.
func (m *Memory) ListOrphanScores(_ context.Context, filter OrphanFilter) ([]*model.OrphanScore, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.OrphanScore
	for _, s := range m.orphanScores {
		if filter.match(s) {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].TimeInserted.Equal(out[j].TimeInserted) {
			return out[i].TimeInserted.Before(out[j].TimeInserted)
		}
		return out[i].OrphanID < out[j].OrphanID
	})
	return out, nil
}

// DeleteOrphanScore implements OrphanStore.
func (m *Memory) DeleteOrphanScore(_ context.Context, orphanID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.orphanScores, orphanID)
	return nil
}

func copyOrphanChart(c *model.OrphanChart) *model.OrphanChart {
	cp := *c
	cp.UserIDs = append([]string(nil), c.UserIDs...)
	return &cp
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func sortGoals(goals []*model.Goal) {
	sort.Slice(goals, func(i, j int) bool { return goals[i].GoalID < goals[j].GoalID })
}
