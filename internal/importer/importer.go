// Package importer runs raw records through conversion, identity,
// validation and insertion, and reports one outcome per record.
package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"runtime/debug"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/scorepipe/internal/adapters/mq/queue"
	"github.com/okian/scorepipe/internal/adapters/repository"
	"github.com/okian/scorepipe/internal/domain/games"
	"github.com/okian/scorepipe/internal/domain/model"
	"github.com/okian/scorepipe/internal/domain/score"
	"github.com/okian/scorepipe/internal/domain/types"
	"github.com/okian/scorepipe/internal/importer/converters"
	"github.com/okian/scorepipe/internal/importer/failure"
	"github.com/okian/scorepipe/pkg/logger"
	"github.com/okian/scorepipe/pkg/metrics"
)

// User-facing messages for failures that are not the submitter's fault.
const (
	msgInternal        = "An internal error has occured."
	msgInternalService = "An internal service error has occured."
)

var tracer = otel.Tracer("github.com/okian/scorepipe/internal/importer") //nolint:gochecknoglobals // otel convention

// OrphanHandler stores records whose chart is unknown.
type OrphanHandler interface {
	Orphan(ctx context.Context, userID string, nf *failure.SongOrChartNotFound) (*model.ImportProcessingInfo, error)
}

// GoalUpdater re-evaluates a user's goals after scores land on chartIDs.
type GoalUpdater interface {
	UpdateForUser(ctx context.Context, game types.Game, userID string, chartIDs []string) ([]model.GoalImportInfo, error)
}

// Store is the persistence the importer writes through.
type Store interface {
	repository.ScoreStore
	repository.BlacklistStore
}

// ImportRequest describes one import run.
type ImportRequest struct {
	UserID     string
	ImportType types.ImportType
	Records    iter.Seq2[json.RawMessage, error]
	// Converter overrides the registry lookup by ImportType.
	Converter converters.Converter
	Context   model.SourceContext
	Progress  ProgressSink
}

// Importer is the import orchestrator.
type Importer struct {
	store      Store
	rules      *games.Registry
	converters *converters.Registry
	orphans    OrphanHandler
	goals      GoalUpdater
	batchSize  int
	now        func() time.Time
	logger     logger.Logger
}

// New creates an importer. Orphan handling and goal updates are optional and
// set through options.
func New(store Store, rules *games.Registry, convs *converters.Registry, opts ...Option) *Importer {
	im := &Importer{
		store:      store,
		rules:      rules,
		converters: convs,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(im)
	}
	if im.logger == nil {
		im.logger = logger.Get().Named("importer")
	}
	return im
}

// run is the state of one invocation.
type run struct {
	userID     string
	importType types.ImportType
	conv       converters.Converter
	sc         model.SourceContext
	q          *queue.InsertQueue
	// force writes each score immediately instead of batching.
	force bool
	// orphan sends unknown charts to the orphan handler.
	orphan bool
	log    logger.Logger

	infos   []model.ImportProcessingInfo
	skipped int
	charts  map[types.Game]map[string]struct{}
}

func (im *Importer) newRun(ctx context.Context, userID string, importType types.ImportType,
	conv converters.Converter, sc model.SourceContext,
) (*run, error) {
	if conv == nil {
		var err error
		if conv, err = im.converters.Get(importType); err != nil {
			return nil, err
		}
	}
	blacklist, err := im.store.Blacklist(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadBlacklist, err)
	}
	opts := []queue.InsertOption{queue.WithLogger(im.logger.Named("queue"))}
	if im.batchSize > 0 {
		opts = append(opts, queue.WithBatchSize(im.batchSize))
	}
	return &run{
		userID:     userID,
		importType: importType,
		conv:       conv,
		sc:         sc,
		q:          queue.NewInsertQueue(userID, im.store, blacklist, opts...),
		orphan:     im.orphans != nil,
		log:        im.logger.With(logger.String("userID", userID), logger.String("importType", string(importType))),
		charts:     map[types.Game]map[string]struct{}{},
	}, nil
}

// RunImport processes req.Records in order and returns one outcome per
// record, except for skips. The queue is always flushed before returning,
// even when the stream fails or ctx is cancelled; in that case the stream or
// ctx error is returned together with the outcomes gathered so far.
func (im *Importer) RunImport(ctx context.Context, req ImportRequest) ([]model.ImportProcessingInfo, error) { //nolint:gocritic // hugeParam
	res, err := im.Import(ctx, req)
	if res == nil {
		return nil, err
	}
	return res.infos, err
}

// Result is a finished import.
type Result struct {
	model.ImportResult
	infos []model.ImportProcessingInfo
}

// Infos returns every per-record outcome in record order.
func (r *Result) Infos() []model.ImportProcessingInfo { return r.infos }

// Import is RunImport plus the run summary.
func (im *Importer) Import(ctx context.Context, req ImportRequest) (res *Result, err error) { //nolint:gocritic // hugeParam
	importID := uuid.NewString()
	ctx, span := tracer.Start(ctx, "importer.RunImport", trace.WithAttributes(
		attribute.String("import.id", importID),
		attribute.String("import.user_id", req.UserID),
		attribute.String("import.type", string(req.ImportType)),
	))
	defer span.End()

	started := im.now()
	r, err := im.newRun(ctx, req.UserID, req.ImportType, req.Converter, req.Context)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	r.log = r.log.With(logger.String("importID", importID))

	res = &Result{ImportResult: model.ImportResult{
		ImportID:    importID,
		UserID:      req.UserID,
		Game:        req.Context.Game,
		ImportType:  req.ImportType,
		TimeStarted: started.UTC(),
	}}

	defer func() {
		// always flush; a cancelled ctx must not lose queued scores
		if ferr := im.finish(context.WithoutCancel(ctx), r, res); ferr != nil && err == nil {
			err = ferr
		}
		res.TimeFinished = im.now().UTC()
		res.Aborted = res.Aborted || err != nil
		metrics.RecordImportDuration(res.TimeFinished.Sub(res.TimeStarted).Seconds())
		span.SetAttributes(
			attribute.Int("import.records", len(res.infos)),
			attribute.Int("import.imported", len(res.ScoreIDs)),
			attribute.Int("import.skipped", res.Skipped),
			attribute.Int("import.errors", len(res.Errors)),
		)
		if err != nil {
			metrics.RecordImportAborted()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		r.log.Info(ctx, "import finished", logger.String("summary", res.Summary()), logger.Bool("aborted", res.Aborted))
	}()

	processed := 0
	for data, serr := range req.Records {
		if serr != nil {
			r.log.Warn(ctx, "record stream failed", logger.Int("processed", processed), logger.Error(serr))
			return res, fmt.Errorf("%w: %w", ErrStream, serr)
		}
		if cerr := ctx.Err(); cerr != nil {
			return res, cerr
		}
		if perr := im.process(ctx, r, data); perr != nil {
			return res, perr
		}
		processed++
		if req.Progress != nil {
			if perr := req.Progress.UpdateProgress(ctx, Progress{
				Description: fmt.Sprintf("Imported %d scores.", processed),
				Processed:   processed,
			}); perr != nil {
				r.log.Debug(ctx, "progress update failed", logger.Error(perr))
			}
		}
	}
	return res, nil
}

// finish flushes the queue, drops outcomes for scores another import wrote
// first, and updates goals for every chart that received a score.
func (im *Importer) finish(ctx context.Context, r *run, res *Result) error {
	_, flushErr := r.q.Flush(ctx)

	dropped := make(map[string]struct{})
	for _, id := range r.q.Dropped() {
		dropped[id] = struct{}{}
	}
	if flushErr != nil {
		// nothing still pending was written
		for _, info := range r.infos {
			if c, ok := info.Content.(model.ScoreImportedContent); ok {
				dropped[c.Score.ScoreID] = struct{}{}
			}
		}
		for _, id := range r.q.Inserted() {
			delete(dropped, id)
		}
	}

	infos := r.infos[:0:0]
	for _, info := range r.infos {
		if c, ok := info.Content.(model.ScoreImportedContent); ok {
			if _, gone := dropped[c.Score.ScoreID]; gone {
				r.skipped++
				continue
			}
			res.ScoreIDs = append(res.ScoreIDs, c.Score.ScoreID)
			r.touch(c.Score)
		} else {
			res.Errors = append(res.Errors, info)
		}
		infos = append(infos, info)
	}
	res.infos = infos
	res.Skipped = r.skipped
	if flushErr != nil {
		return fmt.Errorf("%w: %w", ErrFlush, flushErr)
	}

	goalInfo, err := im.updateGoals(ctx, r)
	res.GoalInfo = goalInfo
	return err
}

func (r *run) touch(doc *model.ScoreDocument) {
	set, ok := r.charts[doc.Game]
	if !ok {
		set = map[string]struct{}{}
		r.charts[doc.Game] = set
	}
	set[doc.ChartID] = struct{}{}
}

func (im *Importer) updateGoals(ctx context.Context, r *run) ([]model.GoalImportInfo, error) {
	if im.goals == nil || len(r.charts) == 0 {
		return nil, nil
	}
	gameList := make([]types.Game, 0, len(r.charts))
	for g := range r.charts {
		gameList = append(gameList, g)
	}
	sort.Slice(gameList, func(i, j int) bool { return gameList[i] < gameList[j] })

	var all []model.GoalImportInfo
	for _, g := range gameList {
		ids := make([]string, 0, len(r.charts[g]))
		for id := range r.charts[g] {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		infos, err := im.goals.UpdateForUser(ctx, g, r.userID, ids)
		if err != nil {
			return all, fmt.Errorf("%w: %w", ErrGoals, err)
		}
		all = append(all, infos...)
	}
	return all, nil
}

// ImportOne replays a single stored record. Unknown charts are reported, not
// orphaned again. A nil info means the record was skipped.
func (im *Importer) ImportOne(ctx context.Context, userID string, importType types.ImportType,
	data json.RawMessage, sc model.SourceContext,
) (*model.ImportProcessingInfo, error) {
	return im.single(ctx, userID, importType, data, sc, false)
}

// SubmitScore imports one record immediately, orphaning it if its chart is
// unknown. A nil info means the record was skipped.
func (im *Importer) SubmitScore(ctx context.Context, userID string, importType types.ImportType,
	data json.RawMessage, sc model.SourceContext,
) (*model.ImportProcessingInfo, error) {
	return im.single(ctx, userID, importType, data, sc, im.orphans != nil)
}

func (im *Importer) single(ctx context.Context, userID string, importType types.ImportType,
	data json.RawMessage, sc model.SourceContext, orphan bool,
) (*model.ImportProcessingInfo, error) {
	ctx, span := tracer.Start(ctx, "importer.ImportOne", trace.WithAttributes(
		attribute.String("import.user_id", userID),
		attribute.String("import.type", string(importType)),
	))
	defer span.End()

	r, err := im.newRun(ctx, userID, importType, nil, sc)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	r.force = true
	r.orphan = orphan

	if err := im.process(ctx, r, data); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if len(r.infos) == 0 {
		return nil, nil
	}
	info := r.infos[0]
	if c, ok := info.Content.(model.ScoreImportedContent); ok {
		r.touch(c.Score)
		if _, err := im.updateGoals(ctx, r); err != nil {
			return &info, err
		}
	}
	span.SetAttributes(attribute.String("import.outcome", string(info.Type)))
	return &info, nil
}

// process handles one record. Only storage write failures are returned;
// everything else becomes an outcome.
func (im *Importer) process(ctx context.Context, r *run, data json.RawMessage) (err error) {
	res, cerr := im.convert(ctx, r, data)
	if cerr != nil {
		return im.handleFailure(ctx, r, data, cerr)
	}

	chart, dry := res.Chart, res.DryScore
	gpt := types.NewGPT(chart.Game, chart.Playtype)
	impl, err := im.rules.Get(gpt)
	if err != nil {
		return im.handleFailure(ctx, r, data, failure.Internalf("%s", err))
	}
	pct, err := impl.Percent(dry.ScoreData.Score, chart)
	if err != nil {
		r.log.Severe(ctx, "cannot derive percent", logger.String("chartID", chart.ChartID), logger.Error(err))
		return im.handleFailure(ctx, r, data, failure.Internalf("%s", err))
	}
	dry.ScoreData.Percent = pct

	scoreID := score.ComputeScoreID(gpt, r.userID, dry, chart.ChartID)
	log := r.log.With(logger.String("scoreID", scoreID))

	skip, reason, err := r.q.Check(ctx, scoreID)
	if err != nil {
		log.Error(ctx, "score lookup failed", logger.Error(err))
		r.add(internalInfo(msgInternalService))
		return nil
	}
	if skip {
		r.skip(reason)
		return nil
	}

	doc := score.Hydrate(r.userID, dry, chart, res.Song, scoreID, impl, im.now())
	if verr := score.Validate(doc, chart, impl.Validators); verr != nil {
		return im.handleFailure(ctx, r, data, verr)
	}

	var written bool
	if r.force {
		written, err = r.q.InsertNow(ctx, doc)
	} else {
		written, err = r.q.Add(ctx, doc)
	}
	if written {
		// a failed auto-flush keeps doc queued, so it still gets an outcome
		r.add(model.ImportProcessingInfo{
			Success: true,
			Type:    types.ScoreImported,
			Message: fmt.Sprintf("Imported score %s.", scoreID),
			Content: model.ScoreImportedContent{Score: doc},
		})
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFlush, err)
	}
	if !written {
		r.skip(queue.SkipRaced)
	}
	return nil
}

// convert runs the converter, turning a panic into an unexpected error.
func (im *Importer) convert(ctx context.Context, r *run, data json.RawMessage) (res *converters.Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error(ctx, "converter panicked", logger.Any("panic", rec), logger.String("stack", string(debug.Stack())))
			res, err = nil, fmt.Errorf("%w: %v", ErrConverterPanic, rec)
		}
	}()
	res, err = r.conv.Convert(ctx, data, r.sc, r.importType)
	if err == nil && (res == nil || res.DryScore == nil || res.Chart == nil || res.Song == nil) {
		err = ErrIncompleteResult
	}
	return res, err
}

func (im *Importer) handleFailure(ctx context.Context, r *run, data json.RawMessage, err error) error {
	f, ok := failure.As(err)
	if !ok {
		r.log.Error(ctx, "unexpected converter error", logger.Error(err))
		r.add(internalInfo(msgInternalService))
		return nil
	}

	switch f := f.(type) {
	case *failure.SkipScore:
		r.log.Debug(ctx, "score skipped", logger.String("reason", f.Msg))
		r.skipped++
		metrics.RecordSkip("skip-score")
	case *failure.InvalidScore:
		r.add(model.ImportProcessingInfo{
			Type:    types.InvalidDatapoint,
			Message: f.Msg,
			Content: model.InvalidContent{Data: data},
		})
	case *failure.AmbiguousTitle:
		r.add(model.ImportProcessingInfo{
			Type:    types.AmbiguousTitle,
			Message: f.Msg,
			Content: model.AmbiguousContent{Title: f.Title},
		})
	case *failure.SongOrChartNotFound:
		if !r.orphan {
			r.add(model.ImportProcessingInfo{Type: types.SongOrChartNotFound, Message: f.Msg})
			return nil
		}
		info, oerr := im.orphans.Orphan(ctx, r.userID, f)
		if oerr != nil {
			r.log.Error(ctx, "orphan store failed", logger.Error(oerr))
			r.add(internalInfo(msgInternalService))
			return nil
		}
		r.add(*info)
	case *failure.Internal:
		r.log.Severe(ctx, "internal failure", logger.String("message", f.Msg))
		r.add(internalInfo(msgInternal))
	}
	return nil
}

func internalInfo(msg string) model.ImportProcessingInfo {
	return model.ImportProcessingInfo{Type: types.InternalError, Message: msg}
}

func (r *run) add(info model.ImportProcessingInfo) {
	metrics.RecordOutcome(string(info.Type))
	r.infos = append(r.infos, info)
}

func (r *run) skip(reason queue.SkipReason) {
	r.skipped++
	metrics.RecordSkip(string(reason))
}
