package score

import (
	"github.com/okian/scorepipe/internal/domain/games"
	"github.com/okian/scorepipe/internal/domain/model"
	"github.com/okian/scorepipe/internal/importer/failure"
)

// Validate runs validators in order and stops at the first violation.
func Validate(doc *model.ScoreDocument, chart *model.Chart, validators []games.ScoreValidator) error {
	for _, v := range validators {
		if msg := v(doc, chart); msg != "" {
			return &failure.InvalidScore{Msg: msg}
		}
	}
	return nil
}
