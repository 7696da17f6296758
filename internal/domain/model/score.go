// Package model contains domain models passed between layers.
package model

import (
	"encoding/json"
	"time"

	"github.com/okian/scorepipe/internal/domain/types"
)

// RawRecord is one untrusted input payload tagged with its source format.
// Data stays opaque so orphaned records can be replayed later.
type RawRecord struct {
	ImportType types.ImportType `json:"importType"`
	Data       json.RawMessage  `json:"data"`
}

// SourceContext is what a converter knows about the import as a whole.
type SourceContext struct {
	Service  string            `json:"service,omitempty"`
	Game     types.Game        `json:"game,omitempty"`
	Playtype types.Playtype    `json:"playtype,omitempty"`
	Version  string            `json:"version,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// ScoreData holds the metric values of a play.
type ScoreData struct {
	Score      float64             `json:"score"`
	Percent    float64             `json:"percent"`
	Lamp       string              `json:"lamp"`
	Judgements map[string]int      `json:"judgements,omitempty"`
	Optional   map[string]*float64 `json:"optional,omitempty"`
}

// Judgement returns the named judgement count and whether it was supplied.
func (d ScoreData) Judgement(name string) (int, bool) {
	v, ok := d.Judgements[name]
	return v, ok
}

// OptionalValue returns a non-nil optional metric.
func (d ScoreData) OptionalValue(name string) (float64, bool) {
	v, ok := d.Optional[name]
	if !ok || v == nil {
		return 0, false
	}
	return *v, true
}

// DryScore is a normalised score that has no identity yet.
type DryScore struct {
	Game         types.Game       `json:"game"`
	ImportType   types.ImportType `json:"importType"`
	Service      string           `json:"service"`
	TimeAchieved *time.Time       `json:"timeAchieved"`
	Comment      *string          `json:"comment"`
	ScoreData    ScoreData        `json:"scoreData"`
	ScoreMeta    map[string]any   `json:"scoreMeta,omitempty"`
}

// ScoreDocument is the persisted score.
type ScoreDocument struct {
	DryScore

	ScoreID    string              `json:"scoreID"`
	ChartID    string              `json:"chartID"`
	SongID     string              `json:"songID"`
	UserID     string              `json:"userID"`
	Playtype   types.Playtype      `json:"playtype"`
	Highlight  bool                `json:"highlight"`
	Grade      string              `json:"grade"`
	Calculated map[string]*float64 `json:"calculatedData"`
	TimeAdded  time.Time           `json:"timeAdded"`
}
