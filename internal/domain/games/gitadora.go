package games

import (
	"math"

	"github.com/okian/scorepipe/internal/domain/model"
	"github.com/okian/scorepipe/internal/domain/types"
)

var gitadoraLamps = []string{"FAILED", "CLEAR", "FULL COMBO", "EXCELLENT"}

var gitadoraGrades = []GradeBoundary{
	{"C", 0}, {"B", 63}, {"A", 73}, {"S", 80}, {"SS", 95}, {"MAX", 100},
}

func gitadora(pt types.Playtype) *Implementation {
	impl := &Implementation{
		GPT:    types.NewGPT(types.GameGitadora, pt),
		Lamps:  gitadoraLamps,
		Grades: gitadoraGrades,
		// gitadora scores are already percentages
		Percent: func(score float64, _ *model.Chart) (float64, error) {
			return score, nil
		},
	}
	impl.Validators = []ScoreValidator{
		lampRequiresZero(impl, "FULL COMBO", "miss"),
		lampRequiresZero(impl, "EXCELLENT", "great", "good", "ok"),
		excellentIsMax,
	}
	impl.ScoreCalcs = map[string]RatingCalc{
		"skill": gitadoraSkill,
	}
	return impl
}

func excellentIsMax(doc *model.ScoreDocument, _ *model.Chart) string {
	if doc.ScoreData.Lamp == "EXCELLENT" && doc.ScoreData.Percent != 100 {
		return "An EXCELLENT must have a percent of 100."
	}
	return ""
}

// gitadoraSkill is level x achievement x 0.2, floored to two places.
func gitadoraSkill(doc *model.ScoreDocument, chart *model.Chart) *float64 {
	skill := chart.LevelNum * doc.ScoreData.Percent * 0.2
	return ptr(math.Floor(skill*100) / 100)
}
