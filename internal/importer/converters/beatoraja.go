package converters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/scorepipe/internal/catalog"
	"github.com/okian/scorepipe/internal/domain/model"
	"github.com/okian/scorepipe/internal/domain/types"
	"github.com/okian/scorepipe/internal/importer/failure"
)

type beatorajaChart struct {
	SHA256   string `json:"sha256" validate:"required,len=64,hexadecimal"`
	MD5      string `json:"md5" validate:"omitempty,len=32,hexadecimal"`
	Title    string `json:"title" validate:"required"`
	Subtitle string `json:"subtitle"`
	Artist   string `json:"artist"`
	Genre    string `json:"genre"`
	Mode     string `json:"mode" validate:"required"`
	Notes    int    `json:"notes" validate:"min=0"`
	Level    int    `json:"level"`
}

type beatorajaScore struct {
	ExScore   *int   `json:"exscore" validate:"required,min=0"`
	Clear     string `json:"clear" validate:"required"`
	EPG       int    `json:"epg" validate:"min=0"`
	LPG       int    `json:"lpg" validate:"min=0"`
	EGR       int    `json:"egr" validate:"min=0"`
	LGR       int    `json:"lgr" validate:"min=0"`
	EGD       int    `json:"egd" validate:"min=0"`
	LGD       int    `json:"lgd" validate:"min=0"`
	EBD       int    `json:"ebd" validate:"min=0"`
	LBD       int    `json:"lbd" validate:"min=0"`
	EPR       int    `json:"epr" validate:"min=0"`
	LPR       int    `json:"lpr" validate:"min=0"`
	EMS       int    `json:"ems" validate:"min=0"`
	LMS       int    `json:"lms" validate:"min=0"`
	MaxCombo  int    `json:"maxcombo" validate:"min=0"`
	Notes     int    `json:"notes" validate:"min=0"`
	PassNotes int    `json:"passnotes" validate:"min=0"`
	Timestamp *int64 `json:"timestamp"`
}

type beatorajaRecord struct {
	Chart beatorajaChart `json:"chart" validate:"required"`
	Score beatorajaScore `json:"score" validate:"required"`
}

var beatorajaLamps = map[string]string{ //nolint:gochecknoglobals // lookup table
	"Failed":          "FAILED",
	"AssistEasy":      "ASSIST CLEAR",
	"LightAssistEasy": "ASSIST CLEAR",
	"Easy":            "EASY CLEAR",
	"Normal":          "CLEAR",
	"Hard":            "HARD CLEAR",
	"ExHard":          "EX HARD CLEAR",
	"FullCombo":       "FULL COMBO",
	"Perfect":         "FULL COMBO",
	"Max":             "FULL COMBO",
}

var beatorajaModes = map[string]types.Playtype{ //nolint:gochecknoglobals // lookup table
	"BEAT_7K":  types.Playtype7K,
	"BEAT_14K": types.Playtype14K,
}

// Beatoraja converts internet-ranking submissions. Charts are identified by
// their sha256, and a submission fully describes its chart, so unknown
// charts may be admitted once enough users play them.
type Beatoraja struct {
	base
}

// NewBeatoraja creates the converter.
func NewBeatoraja(cat catalog.Catalog, opts ...Option) *Beatoraja {
	return &Beatoraja{base: newBase(cat, string(types.ImportBeatoraja), opts)}
}

// Convert implements Converter.
func (b *Beatoraja) Convert(ctx context.Context, data json.RawMessage, sc model.SourceContext, importType types.ImportType) (*Result, error) {
	var rec beatorajaRecord
	if err := decode(data, &rec); err != nil {
		return nil, err
	}

	playtype, ok := beatorajaModes[rec.Chart.Mode]
	if !ok {
		return nil, failure.Invalidf("Unsupported mode %s.", rec.Chart.Mode)
	}
	if rec.Score.Clear == "NoPlay" {
		return nil, failure.Skipf("Score was not played.")
	}
	lamp, ok := beatorajaLamps[rec.Score.Clear]
	if !ok {
		return nil, failure.Invalidf("Unknown clear type %s.", rec.Score.Clear)
	}

	sha := strings.ToLower(rec.Chart.SHA256)
	chart, err := b.cat.FindChart(ctx, catalog.ChartQuery{Game: types.GameBMS, Playtype: playtype, HashSHA256: sha})
	if errors.Is(err, catalog.ErrNotFound) {
		f := notFound(fmt.Sprintf("Could not find chart with SHA256 %s.", sha),
			data, sc, importType, types.GameBMS, playtype, sha)
		f.Admittable = true
		f.Descriptor = describeBeatoraja(&rec.Chart, playtype, sha)
		return nil, f
	}
	if err != nil {
		return nil, fmt.Errorf("find bms chart %s: %w", sha, err)
	}

	song, err := b.songFor(ctx, chart)
	if err != nil {
		return nil, err
	}

	s := rec.Score
	dry := &model.DryScore{
		Game:       types.GameBMS,
		ImportType: importType,
		Service:    sc.Service,
		ScoreData: model.ScoreData{
			Score: float64(*s.ExScore),
			Lamp:  lamp,
			Judgements: map[string]int{
				"pgreat": s.EPG + s.LPG,
				"great":  s.EGR + s.LGR,
				"good":   s.EGD + s.LGD,
				"bad":    s.EBD + s.LBD,
				"poor":   s.EPR + s.LPR,
			},
			Optional: map[string]*float64{
				"bp":       intPtr(s.EBD + s.LBD + s.EPR + s.LPR + s.EMS + s.LMS),
				"fast":     intPtr(s.EGR + s.EGD + s.EBD + s.EPR),
				"slow":     intPtr(s.LGR + s.LGD + s.LBD + s.LPR),
				"maxCombo": intPtr(s.MaxCombo),
			},
		},
		ScoreMeta: map[string]any{},
	}
	if s.Timestamp != nil {
		t := time.Unix(*s.Timestamp, 0).UTC()
		dry.TimeAchieved = &t
	}
	if s.PassNotes < s.Notes {
		// the player quit early; the lamp the client sends is unreliable
		dry.ScoreData.Lamp = "FAILED"
	}
	return &Result{DryScore: dry, Chart: chart, Song: song}, nil
}

func describeBeatoraja(c *beatorajaChart, playtype types.Playtype, sha string) *model.ChartDescriptor {
	title := c.Title
	if c.Subtitle != "" {
		title += " " + c.Subtitle
	}
	return &model.ChartDescriptor{
		Song: model.Song{Game: types.GameBMS, Title: title, Artist: c.Artist},
		Chart: model.Chart{
			Game:       types.GameBMS,
			Playtype:   playtype,
			Difficulty: "CHART",
			Level:      "?",
			IsPrimary:  true,
			Data: model.ChartData{
				HashSHA256: sha,
				HashMD5:    strings.ToLower(c.MD5),
				NoteCount:  c.Notes,
			},
		},
	}
}
