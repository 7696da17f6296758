package converters_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/scorepipe/internal/catalog"
	"github.com/okian/scorepipe/internal/domain/games"
	"github.com/okian/scorepipe/internal/domain/model"
	"github.com/okian/scorepipe/internal/domain/types"
	"github.com/okian/scorepipe/internal/importer/converters"
	"github.com/okian/scorepipe/internal/importer/failure"
	"github.com/okian/scorepipe/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

const (
	knownSHA   = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	unknownSHA = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

// desynced hides one song to simulate a chart pointing at nothing.
type desynced struct {
	*catalog.Memory
	hidden string
}

func (d *desynced) FindSong(ctx context.Context, game types.Game, songID string) (*model.Song, error) {
	if songID == d.hidden {
		return nil, fmt.Errorf("%w: song %s", catalog.ErrNotFound, songID)
	}
	return d.Memory.FindSong(ctx, game, songID)
}

func intp(v int) *int { return &v }

func newCatalog(t *testing.T) *desynced {
	t.Helper()
	m := catalog.NewMemory()
	m.AddSong(model.Song{ID: "s1", Game: types.GameIIDX, Title: "5.1.1.", Artist: "dj nagureo"})
	m.AddSong(model.Song{ID: "s2", Game: types.GameIIDX, Title: "RUGGED ASH", Artist: "SYUNN"})
	m.AddSong(model.Song{ID: "s3", Game: types.GameIIDX, Title: "Colors"})
	m.AddSong(model.Song{ID: "s4", Game: types.GameIIDX, Title: "Colorz"})
	m.AddSong(model.Song{ID: "s5", Game: types.GameIIDX, Title: "ghost"})
	m.AddSong(model.Song{ID: "b1", Game: types.GameBMS, Title: "FREEDOM DiVE"})

	for _, c := range []model.Chart{
		{ChartID: "c1", SongID: "s1", Game: types.GameIIDX, Playtype: types.PlaytypeSP, Difficulty: "ANOTHER",
			Versions: []string{"30", "31"}, Data: model.ChartData{InGameID: intp(1234), NoteCount: 1000}},
		{ChartID: "c2", SongID: "s2", Game: types.GameIIDX, Playtype: types.PlaytypeSP, Difficulty: "LEGGENDARIA",
			Versions: []string{"30"}, Data: model.ChartData{InGameID: intp(1017), NoteCount: 1200}},
		{ChartID: "c3", SongID: "s3", Game: types.GameIIDX, Playtype: types.PlaytypeSP, Difficulty: "HYPER"},
		{ChartID: "c4", SongID: "s4", Game: types.GameIIDX, Playtype: types.PlaytypeSP, Difficulty: "HYPER"},
		{ChartID: "c5", SongID: "s5", Game: types.GameIIDX, Playtype: types.PlaytypeSP, Difficulty: "ANOTHER",
			Data: model.ChartData{InGameID: intp(9999)}},
		{ChartID: "b1c", SongID: "b1", Game: types.GameBMS, Playtype: types.Playtype7K, Difficulty: "CHART",
			Data: model.ChartData{HashSHA256: knownSHA, NoteCount: 1500}},
	} {
		require.NoError(t, m.AddChart(c))
	}
	return &desynced{Memory: m, hidden: "s5"}
}

func kaiRecord(mut func(map[string]any)) json.RawMessage {
	rec := map[string]any{
		"music_id":       1234,
		"play_style":     "SINGLE",
		"difficulty":     "ANOTHER",
		"version_played": 30,
		"lamp":           5,
		"ex_score":       1500,
		"miss_count":     3,
		"fast_count":     10,
		"slow_count":     12,
		"timestamp":      "2023-01-02T03:04:05Z",
	}
	if mut != nil {
		mut(rec)
	}
	raw, _ := json.Marshal(rec)
	return raw
}

func kaiContext() model.SourceContext {
	return model.SourceContext{Service: "kai", Game: types.GameIIDX}
}

func TestKaiIIDX_Convert(t *testing.T) {
	ctx := context.Background()
	conv := converters.NewKaiIIDX(newCatalog(t))

	res, err := conv.Convert(ctx, kaiRecord(nil), kaiContext(), types.ImportKaiIIDX)
	require.NoError(t, err)
	assert.Equal(t, "c1", res.Chart.ChartID)
	assert.Equal(t, "s1", res.Song.ID)
	assert.Equal(t, 1500.0, res.DryScore.ScoreData.Score)
	assert.Equal(t, "HARD CLEAR", res.DryScore.ScoreData.Lamp)
	assert.Equal(t, "kai", res.DryScore.Service)
	require.NotNil(t, res.DryScore.TimeAchieved)
	assert.Equal(t, 2023, res.DryScore.TimeAchieved.Year())
	bp, ok := res.DryScore.ScoreData.OptionalValue("bp")
	assert.True(t, ok)
	assert.Equal(t, 3.0, bp)
	fast, _ := res.DryScore.ScoreData.OptionalValue("fast")
	assert.Equal(t, 10.0, fast)
}

func TestKaiIIDX_MissCountUnknown(t *testing.T) {
	conv := converters.NewKaiIIDX(newCatalog(t))
	for _, v := range []any{-1, nil} {
		res, err := conv.Convert(context.Background(), kaiRecord(func(m map[string]any) { m["miss_count"] = v }),
			kaiContext(), types.ImportKaiIIDX)
		require.NoError(t, err)
		_, ok := res.DryScore.ScoreData.OptionalValue("bp")
		assert.False(t, ok, "miss_count %v", v)
		_, present := res.DryScore.ScoreData.Optional["bp"]
		assert.True(t, present)
	}
}

func TestKaiIIDX_OldLeggendaria(t *testing.T) {
	conv := converters.NewKaiIIDX(newCatalog(t))
	res, err := conv.Convert(context.Background(), kaiRecord(func(m map[string]any) {
		m["music_id"] = 1100
		m["difficulty"] = "ANOTHER"
	}), kaiContext(), types.ImportKaiIIDX)
	require.NoError(t, err)
	assert.Equal(t, "c2", res.Chart.ChartID)
	assert.Equal(t, "LEGGENDARIA", res.Chart.Difficulty)
}

func TestKaiIIDX_Failures(t *testing.T) {
	conv := converters.NewKaiIIDX(newCatalog(t))

	cases := []struct {
		name string
		mut  func(map[string]any)
		kind failure.Kind
		msg  string
	}{
		{"beginner", func(m map[string]any) { m["difficulty"] = "BEGINNER" }, failure.KindSkipScore, "BEGINNER"},
		{"old version", func(m map[string]any) { m["version_played"] = 19 }, failure.KindInvalidScore, "Unsupported version 19."},
		{"new version", func(m map[string]any) { m["version_played"] = 32 }, failure.KindInvalidScore, "Unsupported version 32."},
		{"lamp out of range", func(m map[string]any) { m["lamp"] = 8 }, failure.KindInvalidScore, "lamp"},
		{"bad play style", func(m map[string]any) { m["play_style"] = "TRIPLE" }, failure.KindInvalidScore, "play_style"},
		{"missing music id", func(m map[string]any) { delete(m, "music_id") }, failure.KindInvalidScore, "music_id is required"},
		{"wrong type", func(m map[string]any) { m["ex_score"] = "lots" }, failure.KindInvalidScore, "ex_score"},
		{"bad timestamp", func(m map[string]any) { m["timestamp"] = "yesterday" }, failure.KindInvalidScore, "timestamp"},
		{"unknown chart", func(m map[string]any) { m["music_id"] = 4321 }, failure.KindSongOrChartNotFound, "4321"},
		{"song desync", func(m map[string]any) { m["music_id"] = 9999 }, failure.KindInternal, "desync"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := conv.Convert(context.Background(), kaiRecord(tc.mut), kaiContext(), types.ImportKaiIIDX)
			f, ok := failure.As(err)
			require.True(t, ok, "expected failure, got %v", err)
			assert.Equal(t, tc.kind, f.Kind())
			assert.Contains(t, f.Error(), tc.msg)
		})
	}
}

func TestKaiIIDX_NotFoundCarriesReplayData(t *testing.T) {
	conv := converters.NewKaiIIDX(newCatalog(t))
	data := kaiRecord(func(m map[string]any) { m["music_id"] = 4321 })

	_, err1 := conv.Convert(context.Background(), data, kaiContext(), types.ImportKaiIIDX)
	_, err2 := conv.Convert(context.Background(), data, kaiContext(), types.ImportKaiIIDX)

	var nf1, nf2 *failure.SongOrChartNotFound
	require.True(t, errors.As(err1, &nf1))
	require.True(t, errors.As(err2, &nf2))
	assert.NotEmpty(t, nf1.Fingerprint)
	assert.Equal(t, nf1.Fingerprint, nf2.Fingerprint)
	assert.False(t, nf1.Admittable)
	assert.Equal(t, types.ImportKaiIIDX, nf1.ImportType)
	assert.Equal(t, "kai", nf1.Context.Service)
	assert.JSONEq(t, string(data), string(nf1.Data))
}

func beatorajaRecord(sha, clear string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{
		"chart": {"sha256": %q, "md5": "", "title": "FREEDOM DiVE", "subtitle": "[FOUR DIMENSIONS]",
		          "artist": "xi", "mode": "BEAT_7K", "notes": 1500, "level": 12},
		"score": {"exscore": 2400, "clear": %q, "epg": 500, "lpg": 500, "egr": 200, "lgr": 200,
		          "egd": 50, "lgd": 30, "ebd": 5, "lbd": 5, "epr": 4, "lpr": 6, "ems": 1, "lms": 2,
		          "maxcombo": 700, "notes": 1500, "passnotes": 1500, "timestamp": 1700000000}
	}`, sha, clear))
}

func TestBeatoraja_Convert(t *testing.T) {
	conv := converters.NewBeatoraja(newCatalog(t))
	sc := model.SourceContext{Service: "LR2oraja"}

	res, err := conv.Convert(context.Background(), beatorajaRecord(knownSHA, "Hard"), sc, types.ImportBeatoraja)
	require.NoError(t, err)
	assert.Equal(t, "b1c", res.Chart.ChartID)
	assert.Equal(t, "HARD CLEAR", res.DryScore.ScoreData.Lamp)
	assert.Equal(t, 1000, res.DryScore.ScoreData.Judgements["pgreat"])
	assert.Equal(t, 400, res.DryScore.ScoreData.Judgements["great"])
	bp, _ := res.DryScore.ScoreData.OptionalValue("bp")
	assert.Equal(t, 23.0, bp)
	require.NotNil(t, res.DryScore.TimeAchieved)
	assert.Equal(t, int64(1700000000), res.DryScore.TimeAchieved.Unix())
}

func TestBeatoraja_Failures(t *testing.T) {
	conv := converters.NewBeatoraja(newCatalog(t))
	ctx := context.Background()

	_, err := conv.Convert(ctx, beatorajaRecord(knownSHA, "NoPlay"), model.SourceContext{}, types.ImportBeatoraja)
	var skip *failure.SkipScore
	assert.True(t, errors.As(err, &skip))

	_, err = conv.Convert(ctx, beatorajaRecord("xyz", "Hard"), model.SourceContext{}, types.ImportBeatoraja)
	var invalid *failure.InvalidScore
	require.True(t, errors.As(err, &invalid))
	assert.Contains(t, invalid.Msg, "sha256")

	_, err = conv.Convert(ctx, beatorajaRecord(unknownSHA, "Hard"), model.SourceContext{}, types.ImportBeatoraja)
	var nf *failure.SongOrChartNotFound
	require.True(t, errors.As(err, &nf))
	assert.True(t, nf.Admittable)
	assert.Equal(t, unknownSHA, nf.Fingerprint)
	require.NotNil(t, nf.Descriptor)
	assert.Equal(t, unknownSHA, nf.Descriptor.Chart.Data.HashSHA256)
	assert.Equal(t, 1500, nf.Descriptor.Chart.Data.NoteCount)
	assert.Equal(t, "FREEDOM DiVE [FOUR DIMENSIONS]", nf.Descriptor.Song.Title)
	assert.Equal(t, types.Playtype7K, nf.Playtype)
}

func manualRecord(matchType, identifier, difficulty, lamp string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(
		`{"score": 1500, "lamp": %q, "matchType": %q, "identifier": %q, "difficulty": %q, "timeAchieved": 1672628645000}`,
		lamp, matchType, identifier, difficulty))
}

func TestBatchManual_Convert(t *testing.T) {
	conv := converters.NewBatchManual(newCatalog(t), games.Default())
	sc := model.SourceContext{Service: "manual", Game: types.GameIIDX, Playtype: types.PlaytypeSP}
	ctx := context.Background()

	cases := []struct {
		name, matchType, identifier, difficulty, chartID string
	}{
		{"exact title", converters.MatchSongTitle, "5.1.1.", "ANOTHER", "c1"},
		{"title case and spacing", converters.MatchSongTitle, "  RUGGED   ash ", "LEGGENDARIA", "c2"},
		{"in-game id", converters.MatchInGameID, "1234", "ANOTHER", "c1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := conv.Convert(ctx, manualRecord(tc.matchType, tc.identifier, tc.difficulty, "CLEAR"), sc, types.ImportBatchManual)
			require.NoError(t, err)
			assert.Equal(t, tc.chartID, res.Chart.ChartID)
			assert.Equal(t, "CLEAR", res.DryScore.ScoreData.Lamp)
			assert.Equal(t, "manual", res.DryScore.Service)
			require.NotNil(t, res.DryScore.TimeAchieved)
			assert.Equal(t, int64(1672628645000), res.DryScore.TimeAchieved.UnixMilli())
		})
	}

	bms := model.SourceContext{Game: types.GameBMS, Playtype: types.Playtype7K}
	res, err := conv.Convert(ctx, manualRecord(converters.MatchSHA256, strings.ToUpper(knownSHA), "", "CLEAR"), bms, types.ImportBatchManual)
	require.NoError(t, err)
	assert.Equal(t, "b1c", res.Chart.ChartID)
}

func TestBatchManual_Failures(t *testing.T) {
	conv := converters.NewBatchManual(newCatalog(t), games.Default())
	sc := model.SourceContext{Game: types.GameIIDX, Playtype: types.PlaytypeSP}
	ctx := context.Background()

	_, err := conv.Convert(ctx, manualRecord(converters.MatchSongTitle, "Colors", "HYPER", "CLEAR"), sc, types.ImportBatchManual)
	// exact title wins over the longer fuzzy match
	require.NoError(t, err)

	_, err = conv.Convert(ctx, manualRecord(converters.MatchSongTitle, "Colo", "HYPER", "CLEAR"), sc, types.ImportBatchManual)
	var amb *failure.AmbiguousTitle
	require.True(t, errors.As(err, &amb), "got %v", err)
	assert.Equal(t, "Colo", amb.Title)

	_, err = conv.Convert(ctx, manualRecord(converters.MatchSongTitle, "zzzz", "HYPER", "CLEAR"), sc, types.ImportBatchManual)
	var nf *failure.SongOrChartNotFound
	require.True(t, errors.As(err, &nf))
	assert.False(t, nf.Admittable)

	_, err = conv.Convert(ctx, manualRecord(converters.MatchSongTitle, "5.1.1.", "ANOTHER", "PERFECT"), sc, types.ImportBatchManual)
	var invalid *failure.InvalidScore
	require.True(t, errors.As(err, &invalid))
	assert.Contains(t, invalid.Msg, "PERFECT")

	_, err = conv.Convert(ctx, manualRecord(converters.MatchInGameID, "abc", "ANOTHER", "CLEAR"), sc, types.ImportBatchManual)
	require.True(t, errors.As(err, &invalid))

	_, err = conv.Convert(ctx, manualRecord("md5", "x", "ANOTHER", "CLEAR"), sc, types.ImportBatchManual)
	require.True(t, errors.As(err, &invalid))
	assert.Contains(t, invalid.Msg, "matchType")

	_, err = conv.Convert(ctx, manualRecord(converters.MatchSongTitle, "5.1.1.", "ANOTHER", "CLEAR"),
		model.SourceContext{Game: "popn", Playtype: "9B"}, types.ImportBatchManual)
	require.True(t, errors.As(err, &invalid))
	assert.Contains(t, invalid.Msg, "popn:9B")
}

func TestRegistry(t *testing.T) {
	reg := converters.Default(newCatalog(t), games.Default())
	for _, it := range []types.ImportType{types.ImportKaiIIDX, types.ImportBeatoraja, types.ImportBatchManual, types.ImportSiteHTML} {
		c, err := reg.Get(it)
		require.NoError(t, err)
		assert.NotNil(t, c)
	}
	_, err := reg.Get("file/unknown")
	assert.ErrorIs(t, err, converters.ErrUnknownImportType)

	reg.Register("test/func", converters.Func(func(context.Context, json.RawMessage, model.SourceContext, types.ImportType) (*converters.Result, error) {
		return nil, failure.Skipf("nope")
	}))
	c, err := reg.Get("test/func")
	require.NoError(t, err)
	_, err = c.Convert(context.Background(), nil, model.SourceContext{}, "test/func")
	var skip *failure.SkipScore
	assert.True(t, errors.As(err, &skip))
}
