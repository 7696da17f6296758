package goals

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/okian/scorepipe/internal/adapters/repository"
	"github.com/okian/scorepipe/internal/domain/games"
	"github.com/okian/scorepipe/internal/domain/model"
	"github.com/okian/scorepipe/internal/domain/types"
)

// ScoreEvaluator computes progress from a user's best scores on the goal's
// charts.
type ScoreEvaluator struct {
	scores  repository.ScoreStore
	folders FolderIndex
	rules   *games.Registry
}

// NewScoreEvaluator creates the default ProgressEvaluator.
func NewScoreEvaluator(scores repository.ScoreStore, folders FolderIndex, rules *games.Registry) *ScoreEvaluator {
	return &ScoreEvaluator{scores: scores, folders: folders, rules: rules}
}

// Evaluate implements ProgressEvaluator.
//
// Single mode reports the best metric value on the goal's only chart.
// Absolute mode counts charts whose best value reaches the criterion and
// needs CountNum of them. Proportion mode needs CountNum (a fraction) of
// the selected charts, rounded up.
func (s *ScoreEvaluator) Evaluate(ctx context.Context, goal *model.Goal, userID string) (Progress, error) {
	impl, err := s.rules.Get(types.NewGPT(goal.Game, goal.Playtype))
	if err != nil {
		return Progress{}, err
	}
	key := goal.Criteria.Key
	if !knownMetric(key) {
		return Progress{}, fmt.Errorf("%w: %s", ErrUnknownMetric, key)
	}
	charts, err := s.charts(ctx, goal)
	if err != nil {
		return Progress{}, err
	}
	if len(charts) == 0 {
		return Progress{}, fmt.Errorf("%w: %s", ErrEmptyGoal, goal.GoalID)
	}

	docs, err := s.scores.FindByUserCharts(ctx, userID, charts)
	if err != nil {
		return Progress{}, fmt.Errorf("load scores: %w", err)
	}
	best := make(map[string]float64, len(charts))
	for _, d := range docs {
		v, ok := impl.MetricValue(d, key)
		if !ok {
			continue
		}
		if cur, seen := best[d.ChartID]; !seen || v > cur {
			best[d.ChartID] = v
		}
	}

	switch goal.Criteria.Mode {
	case model.CriteriaSingle:
		p := Progress{
			OutOf:      goal.Criteria.Value,
			OutOfHuman: impl.FormatMetric(key, goal.Criteria.Value),
		}
		if v, ok := best[charts[0]]; ok {
			p.Progress = &v
			p.ProgressHuman = impl.FormatMetric(key, v)
			p.Achieved = v >= goal.Criteria.Value
		} else {
			p.ProgressHuman = "NO DATA"
		}
		return p, nil

	case model.CriteriaAbsolute, model.CriteriaProportion:
		count := 0.0
		for _, v := range best {
			if v >= goal.Criteria.Value {
				count++
			}
		}
		outOf := goal.Criteria.CountNum
		if goal.Criteria.Mode == model.CriteriaProportion {
			outOf = math.Ceil(goal.Criteria.CountNum * float64(len(charts)))
		}
		return Progress{
			Progress:      &count,
			ProgressHuman: strconv.Itoa(int(count)),
			OutOf:         outOf,
			OutOfHuman:    strconv.Itoa(int(outOf)),
			Achieved:      count >= outOf,
		}, nil

	default:
		return Progress{}, fmt.Errorf("%w: %q", ErrUnknownCriteria, goal.Criteria.Mode)
	}
}

func (s *ScoreEvaluator) charts(ctx context.Context, goal *model.Goal) ([]string, error) {
	if goal.Charts.Type != model.GoalChartsFolder {
		return goal.Charts.Data, nil
	}
	if len(goal.Charts.Data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyGoal, goal.GoalID)
	}
	return s.folders.ChartsInFolder(ctx, goal.Charts.Data[0])
}

func knownMetric(key string) bool {
	switch key {
	case games.MetricScore, games.MetricPercent, games.MetricLamp, games.MetricGrade:
		return true
	}
	return false
}
