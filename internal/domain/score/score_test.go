package score_test

import (
	"testing"
	"time"

	"github.com/okian/scorepipe/internal/domain/games"
	"github.com/okian/scorepipe/internal/domain/model"
	"github.com/okian/scorepipe/internal/domain/score"
	"github.com/okian/scorepipe/internal/domain/types"
	"github.com/okian/scorepipe/internal/importer/failure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseDry() *model.DryScore {
	bp := 4.0
	ts := time.Unix(1700000000, 0)
	return &model.DryScore{
		Game:         "iidx",
		Service:      "kai",
		TimeAchieved: &ts,
		ScoreData: model.ScoreData{
			Score:      1500,
			Percent:    75,
			Lamp:       "HARD CLEAR",
			Judgements: map[string]int{"pgreat": 700, "great": 100},
			Optional:   map[string]*float64{"bp": &bp},
		},
	}
}

func TestComputeScoreID_Deterministic(t *testing.T) {
	a := score.ComputeScoreID("iidx:SP", "u1", baseDry(), "chart1")
	b := score.ComputeScoreID("iidx:SP", "u1", baseDry(), "chart1")

	assert.Equal(t, a, b)
	assert.Len(t, a, 65)
	assert.Equal(t, byte('T'), a[0])
}

func TestComputeScoreID_DistinguishingFields(t *testing.T) {
	base := score.ComputeScoreID("iidx:SP", "u1", baseDry(), "chart1")

	tests := []struct {
		name   string
		gpt    string
		user   string
		chart  string
		mutate func(*model.DryScore)
	}{
		{name: "score", mutate: func(d *model.DryScore) { d.ScoreData.Score = 1501 }},
		{name: "percent", mutate: func(d *model.DryScore) { d.ScoreData.Percent = 75.05 }},
		{name: "lamp", mutate: func(d *model.DryScore) { d.ScoreData.Lamp = "CLEAR" }},
		{name: "judgement", mutate: func(d *model.DryScore) { d.ScoreData.Judgements["great"] = 101 }},
		{name: "optional", mutate: func(d *model.DryScore) { d.ScoreData.Optional["bp"] = nil }},
		{name: "user", user: "u2"},
		{name: "chart", chart: "chart2"},
		{name: "gpt", gpt: "iidx:DP"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gpt, user, chart := "iidx:SP", "u1", "chart1"
			if tt.gpt != "" {
				gpt = tt.gpt
			}
			if tt.user != "" {
				user = tt.user
			}
			if tt.chart != "" {
				chart = tt.chart
			}
			d := baseDry()
			if tt.mutate != nil {
				tt.mutate(d)
			}
			assert.NotEqual(t, base, score.ComputeScoreID(types.GPT(gpt), user, d, chart))
		})
	}
}

func TestComputeScoreID_IgnoresProvenance(t *testing.T) {
	base := score.ComputeScoreID("iidx:SP", "u1", baseDry(), "chart1")

	d := baseDry()
	later := time.Unix(1800000000, 0)
	comment := "nice"
	d.TimeAchieved = &later
	d.Service = "manual"
	d.Comment = &comment

	assert.Equal(t, base, score.ComputeScoreID("iidx:SP", "u1", d, "chart1"))
}

func TestValidate(t *testing.T) {
	ok := func(*model.ScoreDocument, *model.Chart) string { return "" }
	first := func(*model.ScoreDocument, *model.Chart) string { return "first" }
	second := func(*model.ScoreDocument, *model.Chart) string { return "second" }

	require.NoError(t, score.Validate(&model.ScoreDocument{}, &model.Chart{}, nil))
	require.NoError(t, score.Validate(&model.ScoreDocument{}, &model.Chart{}, []games.ScoreValidator{ok}))

	err := score.Validate(&model.ScoreDocument{}, &model.Chart{}, []games.ScoreValidator{ok, first, second})
	var invalid *failure.InvalidScore
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "first", invalid.Msg)
}

func TestHydrate(t *testing.T) {
	impl, err := games.Default().Get("iidx:SP")
	require.NoError(t, err)

	chart := &model.Chart{ChartID: "chart1", SongID: "song1", Playtype: "SP", LevelNum: 12}
	song := &model.Song{ID: "song1"}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	doc := score.Hydrate("u1", baseDry(), chart, song, "Tabc", impl, now)

	assert.Equal(t, "Tabc", doc.ScoreID)
	assert.Equal(t, "chart1", doc.ChartID)
	assert.Equal(t, "song1", doc.SongID)
	assert.Equal(t, "u1", doc.UserID)
	assert.Equal(t, "A", doc.Grade)
	assert.Equal(t, now, doc.TimeAdded)
	require.NotNil(t, doc.Calculated["ktLampRating"])
	assert.Equal(t, 12.0, *doc.Calculated["ktLampRating"])
	assert.Equal(t, 1500.0, doc.ScoreData.Score)
}
