// Package repository defines the persistence interfaces the pipeline consumes
// and their in-memory, Postgres and Redis implementations.
package repository

import (
	"context"

	"github.com/okian/scorepipe/internal/domain/model"
	"github.com/okian/scorepipe/internal/domain/types"
)

// ScoreStore persists score documents. scoreID is the natural unique key.
type ScoreStore interface {
	Exists(ctx context.Context, scoreID string) (bool, error)
	// Insert writes doc unless its scoreID is present. It reports whether
	// the document was written.
	Insert(ctx context.Context, doc *model.ScoreDocument) (bool, error)
	// InsertMany writes every document whose scoreID is not present yet and
	// returns the IDs that were actually written.
	InsertMany(ctx context.Context, docs []*model.ScoreDocument) ([]string, error)
	FindByUserCharts(ctx context.Context, userID string, chartIDs []string) ([]*model.ScoreDocument, error)
}

// BlacklistStore holds per-user score IDs that must never be re-inserted.
type BlacklistStore interface {
	Blacklist(ctx context.Context, userID string) (map[string]struct{}, error)
	AddToBlacklist(ctx context.Context, userID, scoreID string) error
}

// GoalStore reads goals and reads/writes goal subscriptions.
type GoalStore interface {
	// GoalsForCharts returns goals of game that name any chartID directly or
	// point at any of folderIDs.
	GoalsForCharts(ctx context.Context, game types.Game, chartIDs, folderIDs []string) ([]*model.Goal, error)
	GoalsInFolder(ctx context.Context, folderID string) ([]*model.Goal, error)
	SubscriptionsFor(ctx context.Context, userID string, goalIDs []string) ([]*model.GoalSubscription, error)
	SubscriptionsForGoals(ctx context.Context, goalIDs []string) ([]*model.GoalSubscription, error)
	// BulkUpdateSubscriptions replaces every given subscription in one call.
	// Callers must not pass an empty slice.
	BulkUpdateSubscriptions(ctx context.Context, subs []*model.GoalSubscription) error

	PutGoal(ctx context.Context, goal *model.Goal) error
	PutSubscription(ctx context.Context, sub *model.GoalSubscription) error
}

// OrphanFilter narrows ListOrphanScores. Empty fields match everything.
type OrphanFilter struct {
	Game        types.Game
	UserID      string
	Fingerprint string
}

// OrphanStore holds scores whose chart is not known yet.
type OrphanStore interface {
	// PutOrphanScore stores s and reports false if its OrphanID exists.
	PutOrphanScore(ctx context.Context, s *model.OrphanScore) (bool, error)
	// AttachUser set-adds userID to the fingerprint's chart record, creating
	// it from chart when absent. It returns the distinct user count.
	AttachUser(ctx context.Context, chart *model.OrphanChart, userID string) (int, error)
	GetOrphanChart(ctx context.Context, fingerprint string) (*model.OrphanChart, error)
	// ClaimOrphanChart atomically removes the chart record. Only one caller
	// ever sees claimed=true for a given record.
	ClaimOrphanChart(ctx context.Context, fingerprint string) (chart *model.OrphanChart, claimed bool, err error)
	OrphanScoresFor(ctx context.Context, fingerprint string) ([]*model.OrphanScore, error)
	ListOrphanScores(ctx context.Context, filter OrphanFilter) ([]*model.OrphanScore, error)
	DeleteOrphanScore(ctx context.Context, orphanID string) error
}

func (f OrphanFilter) match(s *model.OrphanScore) bool {
	return (f.Game == "" || s.Game == f.Game) &&
		(f.UserID == "" || s.UserID == f.UserID) &&
		(f.Fingerprint == "" || s.Fingerprint == f.Fingerprint)
}
