// Package converters turns raw source records into dry scores resolved
// against the catalog. Every converter returns either a result or a
// failure.Failure; anything else is an unexpected error.
package converters

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/okian/scorepipe/internal/catalog"
	"github.com/okian/scorepipe/internal/domain/games"
	"github.com/okian/scorepipe/internal/domain/model"
	"github.com/okian/scorepipe/internal/domain/types"
	"github.com/okian/scorepipe/internal/importer/failure"
	"github.com/okian/scorepipe/pkg/logger"
)

// Result is a converted record.
type Result struct {
	DryScore *model.DryScore
	Chart    *model.Chart
	Song     *model.Song
}

// Converter converts one record of a single import type.
type Converter interface {
	Convert(ctx context.Context, data json.RawMessage, sc model.SourceContext, importType types.ImportType) (*Result, error)
}

// Func adapts a function to Converter.
type Func func(ctx context.Context, data json.RawMessage, sc model.SourceContext, importType types.ImportType) (*Result, error)

// Convert implements Converter.
func (f Func) Convert(ctx context.Context, data json.RawMessage, sc model.SourceContext, importType types.ImportType) (*Result, error) {
	return f(ctx, data, sc, importType)
}

// Registry maps import types to converters.
type Registry struct {
	mu    sync.RWMutex
	convs map[types.ImportType]Converter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{convs: make(map[types.ImportType]Converter)}
}

// Default registers every shipped converter against cat and rules.
func Default(cat catalog.Catalog, rules *games.Registry, opts ...Option) *Registry {
	r := NewRegistry()
	manual := NewBatchManual(cat, rules, opts...)
	r.Register(types.ImportKaiIIDX, NewKaiIIDX(cat, opts...))
	r.Register(types.ImportBeatoraja, NewBeatoraja(cat, opts...))
	r.Register(types.ImportBatchManual, manual)
	// scraped tables are rewritten into batch-manual rows by the source
	r.Register(types.ImportSiteHTML, manual)
	return r
}

// Register adds or replaces the converter for importType.
func (r *Registry) Register(importType types.ImportType, c Converter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.convs[importType] = c
}

// Get returns the converter for importType.
func (r *Registry) Get(importType types.ImportType) (Converter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.convs[importType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownImportType, importType)
	}
	return c, nil
}

// base carries what every converter shares.
type base struct {
	cat    catalog.Catalog
	logger logger.Logger
}

func newBase(cat catalog.Catalog, name string, opts []Option) base {
	b := base{cat: cat}
	for _, opt := range opts {
		opt(&b)
	}
	if b.logger == nil {
		b.logger = logger.Get().Named("converters")
	}
	b.logger = b.logger.With(logger.String("converter", name))
	return b
}

// songFor loads the song a resolved chart points at. A missing song means the
// catalog is corrupt, not that the record is bad.
func (b *base) songFor(ctx context.Context, chart *model.Chart) (*model.Song, error) {
	song, err := b.cat.FindSong(ctx, chart.Game, chart.SongID)
	if errors.Is(err, catalog.ErrNotFound) {
		msg := fmt.Sprintf("Song-Chart desync with song ID %s (%s).", chart.SongID, chart.Game)
		b.logger.Severe(ctx, msg, logger.String("chartID", chart.ChartID))
		return nil, &failure.Internal{Msg: msg}
	}
	if err != nil {
		return nil, fmt.Errorf("find song %s: %w", chart.SongID, err)
	}
	return song, nil
}

// fingerprint identifies an unresolved chart by the keys a converter
// searched with.
func fingerprint(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}

func notFound(msg string, data json.RawMessage, sc model.SourceContext, importType types.ImportType,
	game types.Game, playtype types.Playtype, fp string,
) *failure.SongOrChartNotFound {
	return &failure.SongOrChartNotFound{
		Msg:         msg,
		ImportType:  importType,
		Data:        append(json.RawMessage(nil), data...),
		Context:     sc,
		Game:        game,
		Playtype:    playtype,
		Fingerprint: fp,
	}
}

func intPtr(v int) *float64 {
	f := float64(v)
	return &f
}
