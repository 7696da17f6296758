package model

import (
	"time"

	"github.com/okian/scorepipe/internal/domain/types"
)

// Goal chart selectors.
const (
	GoalChartsSingle = "single"
	GoalChartsMulti  = "multi"
	GoalChartsFolder = "folder"
)

// Goal criteria modes.
const (
	CriteriaSingle     = "single"
	CriteriaAbsolute   = "absolute"
	CriteriaProportion = "proportion"
)

// GoalCharts selects the charts a goal is about. Data holds chart IDs for
// single/multi and one folder ID for folder goals.
type GoalCharts struct {
	Type string   `json:"type"`
	Data []string `json:"data"`
}

// GoalCriteria is what must be reached on the selected charts.
type GoalCriteria struct {
	Key      string  `json:"key"`
	Value    float64 `json:"value"`
	Mode     string  `json:"mode"`
	CountNum float64 `json:"countNum,omitempty"`
}

// Goal is a target definition.
type Goal struct {
	GoalID   string         `json:"goalID"`
	Game     types.Game     `json:"game"`
	Playtype types.Playtype `json:"playtype"`
	Name     string         `json:"name"`
	Charts   GoalCharts     `json:"charts"`
	Criteria GoalCriteria   `json:"criteria"`
}

// References reports whether the goal names chartID directly.
func (g *Goal) References(chartID string) bool {
	if g.Charts.Type == GoalChartsFolder {
		return false
	}
	for _, id := range g.Charts.Data {
		if id == chartID {
			return true
		}
	}
	return false
}

// GoalSubscription is one user's progress on a goal.
type GoalSubscription struct {
	GoalID               string         `json:"goalID"`
	UserID               string         `json:"userID"`
	Game                 types.Game     `json:"game"`
	Playtype             types.Playtype `json:"playtype"`
	Progress             *float64       `json:"progress"`
	ProgressHuman        string         `json:"progressHuman"`
	OutOf                float64        `json:"outOf"`
	OutOfHuman           string         `json:"outOfHuman"`
	Achieved             bool           `json:"achieved"`
	TimeAchieved         *time.Time     `json:"timeAchieved"`
	WasInstantlyAchieved bool           `json:"wasInstantlyAchieved"`
	LastInteraction      *time.Time     `json:"lastInteraction"`
}

// GoalImportInfo describes one subscription change caused by an import.
type GoalImportInfo struct {
	GoalID string           `json:"goalID"`
	Old    GoalSubscription `json:"old"`
	New    GoalSubscription `json:"new"`
}
