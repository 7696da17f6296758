package converters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/okian/scorepipe/internal/catalog"
	"github.com/okian/scorepipe/internal/domain/model"
	"github.com/okian/scorepipe/internal/domain/types"
	"github.com/okian/scorepipe/internal/importer/failure"
)

// kaiIIDXScore is one item of the partner API's IIDX score feed.
type kaiIIDXScore struct {
	MusicID       *int   `json:"music_id" validate:"required,gt=0"`
	PlayStyle     string `json:"play_style" validate:"oneof=SINGLE DOUBLE"`
	Difficulty    string `json:"difficulty" validate:"oneof=BEGINNER NORMAL HYPER ANOTHER LEGGENDARIA"`
	VersionPlayed *int   `json:"version_played" validate:"required"`
	Lamp          *int   `json:"lamp" validate:"required,min=0,max=7"`
	ExScore       *int   `json:"ex_score" validate:"required,min=0"`
	MissCount     *int   `json:"miss_count" validate:"omitempty,min=-1"`
	FastCount     *int   `json:"fast_count" validate:"omitempty,min=0"`
	SlowCount     *int   `json:"slow_count" validate:"omitempty,min=0"`
	Timestamp     string `json:"timestamp" validate:"required"`
}

var kaiLamps = [...]string{ //nolint:gochecknoglobals // lookup table
	0: "NO PLAY",
	1: "FAILED",
	2: "ASSIST CLEAR",
	3: "EASY CLEAR",
	4: "CLEAR",
	5: "HARD CLEAR",
	6: "EX HARD CLEAR",
	7: "FULL COMBO",
}

// Old LEGGENDARIA charts had their own music IDs until they became a real
// difficulty. The feed still reports the old IDs for old scores.
var oldLeggendarias = map[int]int{ //nolint:gochecknoglobals // lookup table
	1100: 1017, 4100: 4005, 4101: 4001, 5100: 5014,
	11100: 11032, 11101: 11012, 12100: 12002, 13100: 13010,
	14100: 14009, 14101: 14046, 15101: 15023, 15102: 15007,
	15104: 15004, 15105: 15045, 16101: 16050, 16102: 16045,
	16103: 16031, 16104: 16015, 17101: 17060, 18100: 18025,
	18103: 18011, 19100: 19063, 20103: 20100, 20104: 20039,
	20105: 20068, 20106: 20024, 20107: 20019, 21100: 21012,
	21101: 21059, 21102: 21069, 21103: 21073, 21104: 21052,
	21105: 21048, 21106: 21050, 21107: 21029, 22101: 22008,
	22102: 22013, 22103: 22024, 22104: 22027, 22105: 22031,
	22106: 22089, 22107: 22006, 23100: 23054, 23101: 23031,
	24100: 24041, 24101: 24011,
}

const (
	kaiMinVersion = 20
	kaiMaxVersion = 31
)

// KaiIIDX converts the partner API's IIDX feed. Charts are matched on
// in-game ID, difficulty and version, so an unknown chart can only be added
// by a catalog update.
type KaiIIDX struct {
	base
}

// NewKaiIIDX creates the converter.
func NewKaiIIDX(cat catalog.Catalog, opts ...Option) *KaiIIDX {
	return &KaiIIDX{base: newBase(cat, string(types.ImportKaiIIDX), opts)}
}

// Convert implements Converter.
func (k *KaiIIDX) Convert(ctx context.Context, data json.RawMessage, sc model.SourceContext, importType types.ImportType) (*Result, error) {
	var s kaiIIDXScore
	if err := decode(data, &s); err != nil {
		return nil, err
	}

	playtype := types.PlaytypeSP
	if s.PlayStyle == "DOUBLE" {
		playtype = types.PlaytypeDP
	}

	v := *s.VersionPlayed
	if v < kaiMinVersion || v > kaiMaxVersion {
		return nil, failure.Invalidf("Unsupported version %d.", v)
	}
	version := strconv.Itoa(v)

	musicID, difficulty := *s.MusicID, s.Difficulty
	if id, ok := oldLeggendarias[musicID]; ok {
		musicID, difficulty = id, "LEGGENDARIA"
	}
	if difficulty == "BEGINNER" {
		return nil, failure.Skipf("BEGINNER charts are not supported.")
	}

	chart, err := k.cat.FindChart(ctx, catalog.ChartQuery{
		Game:       types.GameIIDX,
		Playtype:   playtype,
		Difficulty: difficulty,
		Version:    version,
		InGameID:   &musicID,
	})
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, notFound(
			fmt.Sprintf("Could not find chart with songID %d (%s %s - Version %s)", musicID, playtype, difficulty, version),
			data, sc, importType, types.GameIIDX, playtype,
			fingerprint(string(importType), strconv.Itoa(musicID), string(playtype), difficulty, version),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("find iidx chart %d: %w", musicID, err)
	}

	song, err := k.songFor(ctx, chart)
	if err != nil {
		return nil, err
	}

	achieved, err := time.Parse(time.RFC3339, s.Timestamp)
	if err != nil {
		return nil, failure.Invalidf("Invalid timestamp %q.", s.Timestamp)
	}
	achieved = achieved.UTC()

	optional := map[string]*float64{"fast": nil, "slow": nil, "bp": nil}
	if s.FastCount != nil {
		optional["fast"] = intPtr(*s.FastCount)
	}
	if s.SlowCount != nil {
		optional["slow"] = intPtr(*s.SlowCount)
	}
	if s.MissCount != nil && *s.MissCount != -1 {
		optional["bp"] = intPtr(*s.MissCount)
	}

	return &Result{
		DryScore: &model.DryScore{
			Game:         types.GameIIDX,
			ImportType:   importType,
			Service:      sc.Service,
			TimeAchieved: &achieved,
			ScoreData: model.ScoreData{
				Score:      float64(*s.ExScore),
				Lamp:       kaiLamps[*s.Lamp],
				Judgements: map[string]int{},
				Optional:   optional,
			},
			ScoreMeta: map[string]any{},
		},
		Chart: chart,
		Song:  song,
	}, nil
}
