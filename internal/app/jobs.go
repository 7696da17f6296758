package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/okian/scorepipe/internal/adapters/mq/queue"
	"github.com/okian/scorepipe/internal/adapters/mq/worker"
	"github.com/okian/scorepipe/internal/adapters/repository"
	"github.com/okian/scorepipe/internal/domain/types"
	"github.com/okian/scorepipe/internal/importer/orphan"
	"github.com/okian/scorepipe/pkg/logger"
)

// Job argument keys.
const (
	argFingerprint = "fingerprint"
	argTrigger     = "trigger"
	argFolderID    = "folderID"
	argGame        = "game"
	argUserID      = "userID"
	argChartIDs    = "chartIDs"
)

// DeorphanJob builds a sweep job. Empty arguments match everything.
func DeorphanJob(game types.Game, userID string) queue.Job {
	return queue.NewJob(queue.JobDeorphan, map[string]string{argGame: string(game), argUserID: userID})
}

// FolderGoalsJob builds a job that re-evaluates every goal over folderID.
func FolderGoalsJob(folderID string) queue.Job {
	return queue.NewJob(queue.JobFolderGoals, map[string]string{argFolderID: folderID})
}

// UserGoalsJob builds a job that re-evaluates userID's goals over chartIDs.
func UserGoalsJob(game types.Game, userID string, chartIDs []string) queue.Job {
	return queue.NewJob(queue.JobUserGoals, map[string]string{
		argGame:     string(game),
		argUserID:   userID,
		argChartIDs: strings.Join(chartIDs, ","),
	})
}

func (s *Service) handlers() worker.Handlers {
	return worker.Handlers{
		queue.JobDeorphan:     s.handleDeorphan,
		queue.JobResolveChart: s.handleResolveChart,
		queue.JobFolderGoals:  s.handleFolderGoals,
		queue.JobUserGoals:    s.handleUserGoals,
	}
}

func (s *Service) handleDeorphan(ctx context.Context, job queue.Job) error { //nolint:gocritic // hugeParam
	stats, err := s.resolver.Deorphan(ctx, repository.OrphanFilter{
		Game:   types.Game(job.Args[argGame]),
		UserID: job.Args[argUserID],
	})
	if err != nil {
		return err
	}
	s.logger.Info(ctx, "deorphan job finished", logger.String("jobID", job.ID),
		logger.Int("success", stats.Success), logger.Int("failed", stats.Failed), logger.Int("removed", stats.Removed))
	return nil
}

func (s *Service) handleResolveChart(ctx context.Context, job queue.Job) error { //nolint:gocritic // hugeParam
	fp := job.Args[argFingerprint]
	if fp == "" {
		return fmt.Errorf("%w: %s needs %s", ErrMissingArgs, job.Kind, argFingerprint)
	}
	trigger := orphan.Trigger(job.Args[argTrigger])
	if trigger == "" {
		trigger = orphan.TriggerCatalogUpdate
	}
	_, err := s.resolver.ResolveFingerprint(ctx, fp, trigger)
	return err
}

func (s *Service) handleFolderGoals(ctx context.Context, job queue.Job) error { //nolint:gocritic // hugeParam
	folderID := job.Args[argFolderID]
	if folderID == "" {
		return fmt.Errorf("%w: %s needs %s", ErrMissingArgs, job.Kind, argFolderID)
	}
	n, err := s.goals.UpdateInFolder(ctx, folderID)
	if err != nil {
		return err
	}
	s.logger.Info(ctx, "folder goals updated", logger.String("folderID", folderID), logger.Int("written", n))
	return nil
}

func (s *Service) handleUserGoals(ctx context.Context, job queue.Job) error { //nolint:gocritic // hugeParam
	game, userID, charts := job.Args[argGame], job.Args[argUserID], job.Args[argChartIDs]
	if game == "" || userID == "" || charts == "" {
		return fmt.Errorf("%w: %s needs %s, %s and %s", ErrMissingArgs, job.Kind, argGame, argUserID, argChartIDs)
	}
	_, err := s.goals.UpdateForUser(ctx, types.Game(game), userID, strings.Split(charts, ","))
	return err
}
