package converters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/okian/scorepipe/internal/catalog"
	"github.com/okian/scorepipe/internal/domain/games"
	"github.com/okian/scorepipe/internal/domain/model"
	"github.com/okian/scorepipe/internal/domain/types"
	"github.com/okian/scorepipe/internal/importer/failure"
)

// Batch-manual match types.
const (
	MatchSongTitle = "songTitle"
	MatchInGameID  = "inGameID"
	MatchSHA256    = "sha256"
)

// BatchManualScore is one row of a batch-manual document.
type BatchManualScore struct {
	Score        *float64            `json:"score" validate:"required,min=0"`
	Lamp         string              `json:"lamp" validate:"required"`
	MatchType    string              `json:"matchType" validate:"oneof=songTitle inGameID sha256"`
	Identifier   string              `json:"identifier" validate:"required"`
	Difficulty   string              `json:"difficulty,omitempty" validate:"required_unless=MatchType sha256"`
	TimeAchieved *int64              `json:"timeAchieved,omitempty" validate:"omitempty,min=0"`
	Comment      *string             `json:"comment,omitempty"`
	Judgements   map[string]int      `json:"judgements,omitempty"`
	Optional     map[string]*float64 `json:"optional,omitempty"`
}

// BatchManual converts rows whose game, playtype and service come from the
// import's SourceContext.
type BatchManual struct {
	base
	rules *games.Registry
}

// NewBatchManual creates the converter.
func NewBatchManual(cat catalog.Catalog, rules *games.Registry, opts ...Option) *BatchManual {
	return &BatchManual{base: newBase(cat, string(types.ImportBatchManual), opts), rules: rules}
}

// Convert implements Converter.
func (b *BatchManual) Convert(ctx context.Context, data json.RawMessage, sc model.SourceContext, importType types.ImportType) (*Result, error) {
	impl, err := b.rules.Get(types.NewGPT(sc.Game, sc.Playtype))
	if err != nil {
		return nil, failure.Invalidf("Unsupported game:playtype %s:%s.", sc.Game, sc.Playtype)
	}

	var row BatchManualScore
	if err := decode(data, &row); err != nil {
		return nil, err
	}
	if impl.LampIndex(row.Lamp) < 0 {
		return nil, failure.Invalidf("Invalid lamp %s for %s.", row.Lamp, impl.GPT)
	}
	for name, v := range row.Judgements {
		if v < 0 {
			return nil, failure.Invalidf("Judgement %s cannot be negative (received %d).", name, v)
		}
	}

	chart, song, err := b.resolve(ctx, &row, data, sc, importType)
	if err != nil {
		return nil, err
	}

	dry := &model.DryScore{
		Game:       sc.Game,
		ImportType: importType,
		Service:    sc.Service,
		Comment:    row.Comment,
		ScoreData: model.ScoreData{
			Score:      *row.Score,
			Lamp:       row.Lamp,
			Judgements: row.Judgements,
			Optional:   row.Optional,
		},
		ScoreMeta: map[string]any{},
	}
	if dry.ScoreData.Judgements == nil {
		dry.ScoreData.Judgements = map[string]int{}
	}
	if row.TimeAchieved != nil {
		t := time.UnixMilli(*row.TimeAchieved).UTC()
		dry.TimeAchieved = &t
	}
	return &Result{DryScore: dry, Chart: chart, Song: song}, nil
}

func (b *BatchManual) resolve(ctx context.Context, row *BatchManualScore, data json.RawMessage,
	sc model.SourceContext, importType types.ImportType,
) (*model.Chart, *model.Song, error) {
	missing := func(msg string) error {
		return notFound(msg, data, sc, importType, sc.Game, sc.Playtype,
			fingerprint(string(importType), string(sc.Game), string(sc.Playtype),
				row.MatchType, strings.ToLower(row.Identifier), row.Difficulty))
	}

	switch row.MatchType {
	case MatchSongTitle:
		songs, err := b.cat.FindSongsByTitle(ctx, sc.Game, row.Identifier)
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, nil, missing(fmt.Sprintf("Could not find song with title %s.", row.Identifier))
		}
		if err != nil {
			return nil, nil, fmt.Errorf("find song %q: %w", row.Identifier, err)
		}
		if len(songs) > 1 {
			return nil, nil, failure.Ambiguous(row.Identifier)
		}
		song := songs[0]
		chart, err := b.cat.FindChartOnSong(ctx, sc.Game, sc.Playtype, song.ID, row.Difficulty)
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, nil, missing(fmt.Sprintf("Could not find %s %s chart for %s.", sc.Playtype, row.Difficulty, song.Title))
		}
		if err != nil {
			return nil, nil, fmt.Errorf("find chart on song %s: %w", song.ID, err)
		}
		return chart, song, nil

	case MatchInGameID:
		id, err := strconv.Atoi(strings.TrimSpace(row.Identifier))
		if err != nil {
			return nil, nil, failure.Invalidf("Invalid inGameID %q.", row.Identifier)
		}
		return b.byQuery(ctx, catalog.ChartQuery{
			Game: sc.Game, Playtype: sc.Playtype, Difficulty: row.Difficulty, Version: sc.Version, InGameID: &id,
		}, missing, fmt.Sprintf("Could not find chart with inGameID %d (%s %s).", id, sc.Playtype, row.Difficulty))

	default: // MatchSHA256
		return b.byQuery(ctx, catalog.ChartQuery{
			Game: sc.Game, Playtype: sc.Playtype, HashSHA256: strings.ToLower(row.Identifier),
		}, missing, fmt.Sprintf("Could not find chart with SHA256 %s.", row.Identifier))
	}
}

func (b *BatchManual) byQuery(ctx context.Context, q catalog.ChartQuery, missing func(string) error, msg string) (*model.Chart, *model.Song, error) {
	chart, err := b.cat.FindChart(ctx, q)
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, nil, missing(msg)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("find chart: %w", err)
	}
	song, err := b.songFor(ctx, chart)
	if err != nil {
		return nil, nil, err
	}
	return chart, song, nil
}
