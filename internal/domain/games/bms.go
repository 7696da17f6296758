package games

import "github.com/okian/scorepipe/internal/domain/types"

// BMS shares IIDX's lamp names and EX-score grading.
func bms(pt types.Playtype) *Implementation {
	impl := &Implementation{
		GPT:     types.NewGPT(types.GameBMS, pt),
		Lamps:   iidxLamps,
		Grades:  iidxGrades,
		Percent: exScorePercent,
	}
	impl.Validators = []ScoreValidator{
		exScoreWithinMax,
		fullComboHasNoBP(impl),
	}
	return impl
}
