package games

import (
	"fmt"

	"github.com/okian/scorepipe/internal/domain/model"
	"github.com/okian/scorepipe/internal/domain/types"
)

// IIDX lamps in ascending order.
var iidxLamps = []string{
	"NO PLAY", "FAILED", "ASSIST CLEAR", "EASY CLEAR", "CLEAR",
	"HARD CLEAR", "EX HARD CLEAR", "FULL COMBO",
}

// Grades are ninths of the max EX score; MAX- is 17/18.
var iidxGrades = []GradeBoundary{
	{"F", 0},
	{"E", 200.0 / 9},
	{"D", 300.0 / 9},
	{"C", 400.0 / 9},
	{"B", 500.0 / 9},
	{"A", 600.0 / 9},
	{"AA", 700.0 / 9},
	{"AAA", 800.0 / 9},
	{"MAX-", 1700.0 / 18},
	{"MAX", 100},
}

func iidx(pt types.Playtype) *Implementation {
	impl := &Implementation{
		GPT:     types.NewGPT(types.GameIIDX, pt),
		Lamps:   iidxLamps,
		Grades:  iidxGrades,
		Percent: exScorePercent,
	}
	impl.Validators = []ScoreValidator{
		exScoreWithinMax,
		exScoreMatchesJudgements,
		fullComboHasNoBP(impl),
	}
	impl.ScoreCalcs = map[string]RatingCalc{
		"ktLampRating": ktLampRating(impl),
	}
	return impl
}

func exScoreWithinMax(doc *model.ScoreDocument, chart *model.Chart) string {
	if chart.Data.NoteCount <= 0 {
		return ""
	}
	if maxScore := float64(chart.Data.NoteCount * 2); doc.ScoreData.Score > maxScore {
		return fmt.Sprintf("EX Score of %d is greater than the chart's maximum of %d.",
			int(doc.ScoreData.Score), int(maxScore))
	}
	return ""
}

func exScoreMatchesJudgements(doc *model.ScoreDocument, _ *model.Chart) string {
	pg, okPG := doc.ScoreData.Judgement("pgreat")
	gr, okGR := doc.ScoreData.Judgement("great")
	if !okPG || !okGR {
		return ""
	}
	if want := float64(pg*2 + gr); want != doc.ScoreData.Score {
		return fmt.Sprintf("EX Score of %d does not match PGREATs*2 + GREATs (%d).",
			int(doc.ScoreData.Score), int(want))
	}
	return ""
}

func fullComboHasNoBP(impl *Implementation) ScoreValidator {
	return func(doc *model.ScoreDocument, _ *model.Chart) string {
		if impl.LampIndex(doc.ScoreData.Lamp) < impl.LampIndex("FULL COMBO") {
			return ""
		}
		if bp, ok := doc.ScoreData.OptionalValue("bp"); ok && bp != 0 {
			return fmt.Sprintf("A FULL COMBO cannot have %d BP.", int(bp))
		}
		return ""
	}
}

// ktLampRating is the chart level once the chart is at least cleared.
func ktLampRating(impl *Implementation) RatingCalc {
	return func(doc *model.ScoreDocument, chart *model.Chart) *float64 {
		if impl.LampIndex(doc.ScoreData.Lamp) >= impl.LampIndex("CLEAR") {
			return ptr(chart.LevelNum)
		}
		return ptr(0)
	}
}
