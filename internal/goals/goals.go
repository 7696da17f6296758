// Package goals re-evaluates goal subscriptions after scores change.
package goals

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/scorepipe/internal/adapters/repository"
	"github.com/okian/scorepipe/internal/adapters/webhook"
	"github.com/okian/scorepipe/internal/domain/model"
	"github.com/okian/scorepipe/internal/domain/types"
	"github.com/okian/scorepipe/pkg/logger"
	"github.com/okian/scorepipe/pkg/metrics"
)

const defaultConcurrency = 8

// FolderIndex is the part of the catalog goal lookup needs.
type FolderIndex interface {
	FoldersContaining(ctx context.Context, game types.Game, chartIDs []string) ([]*model.Folder, error)
	ChartsInFolder(ctx context.Context, folderID string) ([]string, error)
}

// Progress is one evaluated goal for one user.
type Progress struct {
	Progress      *float64
	ProgressHuman string
	OutOf         float64
	OutOfHuman    string
	Achieved      bool
}

// ProgressEvaluator computes a user's progress on a goal.
type ProgressEvaluator interface {
	Evaluate(ctx context.Context, goal *model.Goal, userID string) (Progress, error)
}

// Evaluator keeps goal subscriptions in step with scores.
type Evaluator struct {
	store       repository.GoalStore
	folders     FolderIndex
	progress    ProgressEvaluator
	emitter     webhook.Emitter
	concurrency int
	now         func() time.Time
	logger      logger.Logger
}

// NewEvaluator creates an evaluator. Events are discarded unless an emitter
// is set.
func NewEvaluator(store repository.GoalStore, folders FolderIndex, progress ProgressEvaluator, opts ...Option) *Evaluator {
	e := &Evaluator{
		store:       store,
		folders:     folders,
		progress:    progress,
		emitter:     webhook.Discard{},
		concurrency: defaultConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logger.Get().Named("goals")
	}
	return e
}

// UpdateForUser re-evaluates every goal userID subscribes to that touches
// chartIDs, directly or through a folder.
func (e *Evaluator) UpdateForUser(ctx context.Context, game types.Game, userID string, chartIDs []string) ([]model.GoalImportInfo, error) {
	if len(chartIDs) == 0 {
		return nil, nil
	}
	folders, err := e.folders.FoldersContaining(ctx, game, chartIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLookup, err)
	}
	folderIDs := make([]string, 0, len(folders))
	for _, f := range folders {
		folderIDs = append(folderIDs, f.FolderID)
	}

	goals, err := e.store.GoalsForCharts(ctx, game, chartIDs, folderIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLookup, err)
	}
	if len(goals) == 0 {
		return nil, nil
	}
	subs, err := e.store.SubscriptionsFor(ctx, userID, goalIDs(goals))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLookup, err)
	}
	e.logger.Debug(ctx, "relevant goals found",
		logger.String("userID", userID), logger.Int("goals", len(goals)), logger.Int("subscriptions", len(subs)))

	return e.updateUser(ctx, game, userID, goals, bySubGoal(subs))
}

// UpdateInFolder re-evaluates every subscription to a goal over folderID,
// for example after the folder's chart list changed. It returns the number
// of subscriptions written.
func (e *Evaluator) UpdateInFolder(ctx context.Context, folderID string) (int, error) {
	goals, err := e.store.GoalsInFolder(ctx, folderID)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrLookup, err)
	}
	if len(goals) == 0 {
		return 0, nil
	}
	subs, err := e.store.SubscriptionsForGoals(ctx, goalIDs(goals))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrLookup, err)
	}

	users := make(map[string]map[string]*model.GoalSubscription)
	for _, s := range subs {
		if users[s.UserID] == nil {
			users[s.UserID] = make(map[string]*model.GoalSubscription)
		}
		users[s.UserID][s.GoalID] = s
	}
	e.logger.Info(ctx, "updating folder goals",
		logger.String("folderID", folderID), logger.Int("goals", len(goals)), logger.Int("users", len(users)))

	var (
		mu      sync.Mutex
		written int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for userID, userSubs := range users {
		g.Go(func() error {
			infos, err := e.updateUser(gctx, goals[0].Game, userID, goals, userSubs)
			if err != nil {
				return err
			}
			mu.Lock()
			written += len(infos)
			mu.Unlock()
			return nil
		})
	}
	err = g.Wait()
	return written, err
}

type result struct {
	info     model.GoalImportInfo
	write    *model.GoalSubscription
	achieved bool
}

// updateUser evaluates goals against the user's subscriptions, writes every
// change in one bulk call and emits one event for new achievements. Goals
// without a subscription are skipped.
func (e *Evaluator) updateUser(ctx context.Context, game types.Game, userID string,
	goals []*model.Goal, subs map[string]*model.GoalSubscription,
) ([]model.GoalImportInfo, error) {
	results := make([]*result, len(goals))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, goal := range goals {
		sub, ok := subs[goal.GoalID]
		if !ok {
			continue
		}
		g.Go(func() error {
			prog, err := e.progress.Evaluate(gctx, goal, userID)
			if err != nil {
				metrics.RecordGoalEvaluationError()
				e.logger.Warn(gctx, "goal evaluation failed, skipping",
					logger.String("goalID", goal.GoalID), logger.String("userID", userID), logger.Error(err))
				return nil
			}
			results[i] = e.apply(gctx, sub, prog)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var (
		infos    []model.GoalImportInfo
		writes   []*model.GoalSubscription
		achieved []model.GoalImportInfo
	)
	for _, r := range results {
		if r == nil {
			continue
		}
		infos = append(infos, r.info)
		writes = append(writes, r.write)
		if r.achieved {
			achieved = append(achieved, r.info)
		}
	}
	if len(writes) == 0 {
		return nil, nil
	}
	if err := e.store.BulkUpdateSubscriptions(ctx, writes); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBulkWrite, err)
	}
	metrics.RecordGoalUpdates(len(writes), len(achieved))

	if len(achieved) > 0 {
		ev := webhook.NewEvent(webhook.EventGoalsAchieved, webhook.GoalsAchievedContent{
			UserID: userID,
			Game:   game,
			Goals:  achieved,
		})
		if err := e.emitter.Emit(ctx, ev); err != nil {
			e.logger.Warn(ctx, "goals-achieved event not delivered", logger.String("userID", userID), logger.Error(err))
		}
	}
	return infos, nil
}

// apply returns nil when progress, outOf and achieved are unchanged.
func (e *Evaluator) apply(ctx context.Context, old *model.GoalSubscription, p Progress) *result {
	if floatPtrEqual(old.Progress, p.Progress) && old.OutOf == p.OutOf && old.Achieved == p.Achieved {
		return nil
	}
	now := e.now().UTC()
	next := *old
	next.Progress = p.Progress
	next.ProgressHuman = p.ProgressHuman
	next.OutOf = p.OutOf
	next.OutOfHuman = p.OutOfHuman
	next.Achieved = p.Achieved
	next.LastInteraction = &now

	switch {
	case p.Achieved && old.TimeAchieved == nil:
		next.TimeAchieved = &now
	case !p.Achieved:
		next.TimeAchieved = nil
		if old.Achieved {
			// a lost goal was not achieved instantly
			next.WasInstantlyAchieved = false
			e.logger.Info(ctx, "goal no longer achieved",
				logger.String("goalID", old.GoalID), logger.String("userID", old.UserID))
		}
	}
	return &result{
		info:     model.GoalImportInfo{GoalID: old.GoalID, Old: *old, New: next},
		write:    &next,
		achieved: p.Achieved && !old.Achieved,
	}
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func goalIDs(goals []*model.Goal) []string {
	ids := make([]string, 0, len(goals))
	for _, g := range goals {
		ids = append(ids, g.GoalID)
	}
	sort.Strings(ids)
	return ids
}

func bySubGoal(subs []*model.GoalSubscription) map[string]*model.GoalSubscription {
	out := make(map[string]*model.GoalSubscription, len(subs))
	for _, s := range subs {
		out[s.GoalID] = s
	}
	return out
}
