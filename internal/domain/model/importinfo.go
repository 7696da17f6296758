package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/okian/scorepipe/internal/domain/types"
)

// ImportProcessingInfo is the outcome of one record.
type ImportProcessingInfo struct {
	Success bool                 `json:"success"`
	Type    types.ProcessingType `json:"type"`
	Message string               `json:"message"`
	Content any                  `json:"content"`
}

// ScoreImportedContent is the content of a ScoreImported outcome.
type ScoreImportedContent struct {
	Score *ScoreDocument `json:"score"`
}

// OrphanContent is the content of SongOrChartNotFound and OrphanExists.
type OrphanContent struct {
	OrphanID string `json:"orphanID"`
}

// InvalidContent is the content of InvalidDatapoint.
type InvalidContent struct {
	Data json.RawMessage `json:"data"`
}

// AmbiguousContent is the content of AmbiguousTitle.
type AmbiguousContent struct {
	Title string `json:"title"`
}

// ImportResult summarises a whole import run.
type ImportResult struct {
	ImportID     string                 `json:"importID"`
	UserID       string                 `json:"userID"`
	Game         types.Game             `json:"game"`
	ImportType   types.ImportType       `json:"importType"`
	ScoreIDs     []string               `json:"scoreIDs"`
	Errors       []ImportProcessingInfo `json:"errors"`
	Skipped      int                    `json:"skipped"`
	GoalInfo     []GoalImportInfo       `json:"goalInfo"`
	TimeStarted  time.Time              `json:"timeStarted"`
	TimeFinished time.Time              `json:"timeFinished"`
	Aborted      bool                   `json:"aborted"`
}

// Summary renders "N imported, M skipped, K orphaned, J invalid".
func (r *ImportResult) Summary() string {
	var orphaned, invalid, other int
	for _, e := range r.Errors {
		switch e.Type {
		case types.SongOrChartNotFound, types.OrphanExists:
			orphaned++
		case types.InvalidDatapoint:
			invalid++
		default:
			other++
		}
	}
	s := fmt.Sprintf("%d imported, %d skipped, %d orphaned, %d invalid",
		len(r.ScoreIDs), r.Skipped, orphaned, invalid)
	if other > 0 {
		s += fmt.Sprintf(", %d failed", other)
	}
	return s
}
