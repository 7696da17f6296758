package score

import (
	"time"

	"github.com/okian/scorepipe/internal/domain/games"
	"github.com/okian/scorepipe/internal/domain/model"
)

// Hydrate turns a dry score into a document with grade and ratings filled in.
func Hydrate(userID string, dry *model.DryScore, chart *model.Chart, song *model.Song,
	scoreID string, impl *games.Implementation, now time.Time,
) *model.ScoreDocument {
	doc := &model.ScoreDocument{
		DryScore:   *dry,
		ScoreID:    scoreID,
		ChartID:    chart.ChartID,
		SongID:     song.ID,
		UserID:     userID,
		Playtype:   chart.Playtype,
		Calculated: make(map[string]*float64, len(impl.ScoreCalcs)),
		TimeAdded:  now.UTC(),
	}
	doc.Grade = impl.Grade(dry.ScoreData.Percent)
	for name, calc := range impl.ScoreCalcs {
		doc.Calculated[name] = calc(doc, chart)
	}
	return doc
}
