package games

import (
	"fmt"

	"github.com/okian/scorepipe/internal/domain/model"
)

func ptr(v float64) *float64 { return &v }

// exScorePercent is EX score over the maximum (two per note).
func exScorePercent(score float64, chart *model.Chart) (float64, error) {
	if chart.Data.NoteCount <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrNoNotecount, chart.ChartID)
	}
	return 100 * score / float64(chart.Data.NoteCount*2), nil
}

// lampRequiresZero builds a validator: when the score's lamp is at least
// lamp (by order), every named judgement that was supplied must be zero.
func lampRequiresZero(impl *Implementation, lamp string, judgements ...string) ScoreValidator {
	return func(doc *model.ScoreDocument, _ *model.Chart) string {
		if impl.LampIndex(doc.ScoreData.Lamp) < impl.LampIndex(lamp) {
			return ""
		}
		for _, j := range judgements {
			if v, ok := doc.ScoreData.Judgement(j); ok && v != 0 {
				return fmt.Sprintf("A lamp of %s cannot have a %s count of %d.", doc.ScoreData.Lamp, j, v)
			}
		}
		return ""
	}
}
