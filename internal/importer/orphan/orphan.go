// Package orphan holds scores whose chart the catalog cannot resolve yet and
// replays them once it can.
package orphan

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/okian/scorepipe/internal/adapters/repository"
	"github.com/okian/scorepipe/internal/catalog"
	"github.com/okian/scorepipe/internal/domain/model"
	"github.com/okian/scorepipe/internal/domain/types"
	"github.com/okian/scorepipe/internal/importer/failure"
	"github.com/okian/scorepipe/pkg/logger"
	"github.com/okian/scorepipe/pkg/metrics"
)

const defaultThreshold = 5

// Trigger names what caused a resolution attempt.
type Trigger string

// Resolution triggers.
const (
	TriggerCorroboration Trigger = "corroboration"
	TriggerCatalogUpdate Trigger = "catalog-update"
)

// Reimporter runs one stored record through the normal import path. It
// never orphans the record again; a nil info means the record was skipped.
type Reimporter interface {
	ImportOne(ctx context.Context, userID string, importType types.ImportType,
		data json.RawMessage, sc model.SourceContext) (*model.ImportProcessingInfo, error)
}

// ChartAdmitter adds a corroborated chart to the catalog.
type ChartAdmitter = catalog.Admitter

// DeorphanStats counts the outcome of a resolution or sweep. Removed scores failed
// permanently and were dropped.
type DeorphanStats struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
	Removed int `json:"removed"`
}

func (s *DeorphanStats) add(o DeorphanStats) {
	s.Success += o.Success
	s.Failed += o.Failed
	s.Removed += o.Removed
}

// Resolver owns the orphan state machine.
type Resolver struct {
	store      repository.OrphanStore
	admitter   ChartAdmitter
	reimporter Reimporter
	threshold  int
	// corroborated, when set, hands resolution off instead of running it
	// inline.
	corroborated func(ctx context.Context, fingerprint string) error
	now          func() time.Time
	logger       logger.Logger
}

// NewResolver creates a resolver. A Reimporter must be set with
// SetReimporter before anything is resolved.
func NewResolver(store repository.OrphanStore, admitter ChartAdmitter, opts ...Option) *Resolver {
	r := &Resolver{
		store:     store,
		admitter:  admitter,
		threshold: defaultThreshold,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logger.Get().Named("orphans")
	}
	return r
}

// SetReimporter sets the import path used to replay orphans. The importer
// itself depends on the resolver, so it is wired after construction.
func (r *Resolver) SetReimporter(ri Reimporter) {
	r.reimporter = ri
}

// ID is the deterministic identity of one user's orphaned submission.
func ID(importType types.ImportType, data json.RawMessage, sc model.SourceContext, userID string) string {
	ctxJSON, _ := json.Marshal(sc) //nolint:errchkjson // plain struct
	h := sha256.New()
	for _, part := range [][]byte{[]byte(importType), compact(data), ctxJSON, []byte(userID)} {
		h.Write(part)
		h.Write([]byte{0x1f})
	}
	return "O" + hex.EncodeToString(h.Sum(nil))
}

func compact(data json.RawMessage) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return data
	}
	return buf.Bytes()
}

// Orphan stores nf for userID and records the user against the chart's
// fingerprint. Reaching the threshold on an admittable chart starts
// resolution.
func (r *Resolver) Orphan(ctx context.Context, userID string, nf *failure.SongOrChartNotFound) (*model.ImportProcessingInfo, error) {
	id := ID(nf.ImportType, nf.Data, nf.Context, userID)
	created, err := r.store.PutOrphanScore(ctx, &model.OrphanScore{
		OrphanID:     id,
		Fingerprint:  nf.Fingerprint,
		ImportType:   nf.ImportType,
		UserID:       userID,
		Data:         nf.Data,
		Context:      nf.Context,
		ErrMsg:       nf.Msg,
		Game:         nf.Game,
		TimeInserted: r.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("store orphan score: %w", err)
	}

	// The set-add is idempotent and runs for repeat submissions too, so a
	// retry repairs a user that was stored but never attached.
	users, err := r.store.AttachUser(ctx, &model.OrphanChart{
		Fingerprint: nf.Fingerprint,
		Game:        nf.Game,
		Playtype:    nf.Playtype,
		ImportType:  nf.ImportType,
		Descriptor:  nf.Descriptor,
		Admittable:  nf.Admittable,
		FirstSeen:   r.now().UTC(),
	}, userID)
	if err != nil {
		return nil, fmt.Errorf("attach orphan user: %w", err)
	}

	info := &model.ImportProcessingInfo{
		Type:    types.SongOrChartNotFound,
		Message: nf.Msg,
		Content: model.OrphanContent{OrphanID: id},
	}
	if created {
		metrics.RecordOrphanCreated(users)
	} else {
		info.Type = types.OrphanExists
		info.Message = "This score is already orphaned."
	}

	if nf.Admittable && users >= r.threshold {
		r.logger.Info(ctx, "orphan chart corroborated",
			logger.String("fingerprint", nf.Fingerprint), logger.Int("users", users))
		if err := r.corroborate(ctx, nf.Fingerprint); err != nil {
			// the orphan is stored; resolution is retried by the sweep
			r.logger.Error(ctx, "corroboration failed", logger.String("fingerprint", nf.Fingerprint), logger.Error(err))
		}
	}
	return info, nil
}

func (r *Resolver) corroborate(ctx context.Context, fp string) error {
	if r.corroborated != nil {
		return r.corroborated(ctx, fp)
	}
	_, err := r.ResolveFingerprint(ctx, fp, TriggerCorroboration)
	return err
}

// ResolveFingerprint replays every orphan of fp. Only the caller that claims
// the chart record does any work; everyone else gets zero stats. On
// corroboration the chart is admitted to the catalog first.
func (r *Resolver) ResolveFingerprint(ctx context.Context, fp string, trigger Trigger) (DeorphanStats, error) {
	chart, claimed, err := r.store.ClaimOrphanChart(ctx, fp)
	if err != nil {
		return DeorphanStats{}, fmt.Errorf("claim orphan chart %s: %w", fp, err)
	}
	if !claimed {
		return DeorphanStats{}, nil
	}
	log := r.logger.With(logger.String("fingerprint", fp), logger.String("trigger", string(trigger)))

	if trigger == TriggerCorroboration {
		if !chart.Admittable || chart.Descriptor == nil {
			r.restore(ctx, chart, chart.UserIDs)
			return DeorphanStats{}, fmt.Errorf("%w: %s", ErrNotAdmittable, fp)
		}
		admitted, err := r.admitter.AdmitChart(ctx, chart.Descriptor)
		if err != nil {
			r.restore(ctx, chart, chart.UserIDs)
			return DeorphanStats{}, fmt.Errorf("admit chart %s: %w", fp, err)
		}
		log.Info(ctx, "chart admitted", logger.String("chartID", admitted.ChartID))
	}

	scores, err := r.store.OrphanScoresFor(ctx, fp)
	if err != nil {
		r.restore(ctx, chart, chart.UserIDs)
		return DeorphanStats{}, fmt.Errorf("load orphan scores %s: %w", fp, err)
	}

	stats, unresolved := r.replay(ctx, scores)
	// the claim removed the chart record; users still waiting keep counting
	// towards corroboration
	r.restore(ctx, chart, unresolved)
	// a user attached after the claim may already have been replayed above
	if len(unresolved) == 0 {
		r.dropIfEmpty(ctx, fp)
	}

	metrics.RecordOrphanResolved(string(trigger))
	log.Info(ctx, "orphan fingerprint resolved",
		logger.Int("success", stats.Success), logger.Int("failed", stats.Failed), logger.Int("removed", stats.Removed))
	return stats, nil
}

// Deorphan replays every stored orphan score matching filter. It is the
// deferred retry for scores a resolution could not place.
func (r *Resolver) Deorphan(ctx context.Context, filter repository.OrphanFilter) (DeorphanStats, error) {
	scores, err := r.store.ListOrphanScores(ctx, filter)
	if err != nil {
		return DeorphanStats{}, fmt.Errorf("list orphan scores: %w", err)
	}

	var (
		total   DeorphanStats
		touched = map[string]struct{}{}
	)
	for _, s := range scores {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		st, _ := r.replay(ctx, []*model.OrphanScore{s})
		total.add(st)
		touched[s.Fingerprint] = struct{}{}
	}

	// drop chart records nobody waits on any more
	for fp := range touched {
		r.dropIfEmpty(ctx, fp)
	}
	r.logger.Info(ctx, "deorphan sweep finished",
		logger.Int("scanned", len(scores)),
		logger.Int("success", total.Success), logger.Int("failed", total.Failed), logger.Int("removed", total.Removed))
	return total, nil
}

// replay re-imports scores one at a time. A failure for one user never
// stops the others. It returns the users whose scores are still waiting.
func (r *Resolver) replay(ctx context.Context, scores []*model.OrphanScore) (DeorphanStats, []string) {
	var (
		stats   DeorphanStats
		waiting []string
	)
	for _, s := range scores {
		outcome := r.replayOne(ctx, s)
		metrics.RecordOrphanReimport(outcome)
		switch outcome {
		case outcomeImported:
			stats.Success++
		case outcomeRemoved:
			stats.Removed++
		default:
			stats.Failed++
			waiting = append(waiting, s.UserID)
			continue
		}
		if err := r.store.DeleteOrphanScore(ctx, s.OrphanID); err != nil {
			r.logger.Warn(ctx, "delete orphan score failed", logger.String("orphanID", s.OrphanID), logger.Error(err))
		}
	}
	return stats, waiting
}

const (
	outcomeImported = "imported"
	outcomeRemoved  = "removed"
	outcomeWaiting  = "waiting"
	outcomeFailed   = "failed"
)

func (r *Resolver) replayOne(ctx context.Context, s *model.OrphanScore) (outcome string) {
	log := r.logger.With(logger.String("orphanID", s.OrphanID), logger.String("userID", s.UserID))
	defer func() {
		if rec := recover(); rec != nil {
			log.Error(ctx, "orphan re-import panicked", logger.Any("panic", rec))
			outcome = outcomeFailed
		}
	}()

	info, err := r.reimporter.ImportOne(ctx, s.UserID, s.ImportType, s.Data, s.Context)
	if err != nil {
		log.Warn(ctx, "orphan re-import failed", logger.Error(err))
		return outcomeFailed
	}
	if info == nil {
		return outcomeRemoved
	}
	switch info.Type {
	case types.ScoreImported:
		return outcomeImported
	case types.SongOrChartNotFound, types.OrphanExists:
		return outcomeWaiting
	case types.InternalError:
		return outcomeFailed
	default:
		log.Info(ctx, "orphan dropped", logger.String("type", string(info.Type)), logger.String("message", info.Message))
		return outcomeRemoved
	}
}

// dropIfEmpty removes the chart record of fp once no orphan score refers to it.
func (r *Resolver) dropIfEmpty(ctx context.Context, fp string) {
	left, err := r.store.OrphanScoresFor(ctx, fp)
	if err != nil {
		r.logger.Warn(ctx, "orphan chart cleanup failed", logger.String("fingerprint", fp), logger.Error(err))
		return
	}
	if len(left) > 0 {
		return
	}
	if _, _, err := r.store.ClaimOrphanChart(ctx, fp); err != nil {
		r.logger.Warn(ctx, "orphan chart cleanup failed", logger.String("fingerprint", fp), logger.Error(err))
	}
}

// restore puts a claimed chart record back for users.
func (r *Resolver) restore(ctx context.Context, chart *model.OrphanChart, users []string) {
	for _, u := range users {
		if _, err := r.store.AttachUser(ctx, chart, u); err != nil {
			r.logger.Error(ctx, "restore orphan chart failed",
				logger.String("fingerprint", chart.Fingerprint), logger.String("userID", u), logger.Error(err))
		}
	}
}
