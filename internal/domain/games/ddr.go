package games

import (
	"github.com/okian/scorepipe/internal/domain/model"
	"github.com/okian/scorepipe/internal/domain/types"
)

const ddrMaxScore = 1_000_000

var ddrLamps = []string{
	"FAILED", "ASSIST", "CLEAR", "LIFE4", "FULL COMBO",
	"GREAT FULL COMBO", "PERFECT FULL COMBO", "MARVELOUS FULL COMBO",
}

var ddrGrades = []GradeBoundary{
	{"D", 0}, {"D+", 55}, {"C-", 59}, {"C", 60}, {"C+", 65},
	{"B-", 69}, {"B", 70}, {"B+", 75}, {"A-", 79}, {"A", 80},
	{"A+", 85}, {"AA-", 89}, {"AA", 90}, {"AA+", 95}, {"AAA", 99},
}

func ddr(pt types.Playtype) *Implementation {
	impl := &Implementation{
		GPT:    types.NewGPT(types.GameDDR, pt),
		Lamps:  ddrLamps,
		Grades: ddrGrades,
		Percent: func(score float64, _ *model.Chart) (float64, error) {
			return 100 * score / ddrMaxScore, nil
		},
	}
	impl.Validators = []ScoreValidator{
		lampRequiresZero(impl, "FULL COMBO", "miss"),
		lampRequiresZero(impl, "GREAT FULL COMBO", "good"),
		lampRequiresZero(impl, "PERFECT FULL COMBO", "great"),
		lampRequiresZero(impl, "MARVELOUS FULL COMBO", "perfect"),
	}
	// flare skill is supplied by the deployment via Registry.SetScoreCalc
	impl.ScoreCalcs = map[string]RatingCalc{}
	return impl
}
