// Package types contains common identifiers shared across the pipeline.
package types

import (
	"fmt"
	"strings"
)

// Game identifies a supported rhythm game.
type Game string

// Supported games.
const (
	GameIIDX     Game = "iidx"
	GameBMS      Game = "bms"
	GameDDR      Game = "ddr"
	GameGitadora Game = "gitadora"
)

// Playtype is a game's play mode (e.g. SP/DP on iidx).
type Playtype string

// Supported playtypes.
const (
	PlaytypeSP   Playtype = "SP"
	PlaytypeDP   Playtype = "DP"
	Playtype7K   Playtype = "7K"
	Playtype14K  Playtype = "14K"
	PlaytypeGita Playtype = "Gita"
	PlaytypeDora Playtype = "Dora"
)

// GPT is the "game:playtype" key used for identity and per-game rules.
type GPT string

// NewGPT joins game and playtype.
func NewGPT(game Game, playtype Playtype) GPT {
	return GPT(string(game) + ":" + string(playtype))
}

// Split returns the game and playtype halves of g.
func (g GPT) Split() (Game, Playtype, error) {
	game, pt, ok := strings.Cut(string(g), ":")
	if !ok || game == "" || pt == "" {
		return "", "", fmt.Errorf("malformed game:playtype %q", string(g))
	}
	return Game(game), Playtype(pt), nil
}

// ImportType tags the source format of a raw record.
type ImportType string

// Known import types.
const (
	ImportKaiIIDX     ImportType = "api/kai-iidx"
	ImportBeatoraja   ImportType = "ir/beatoraja"
	ImportBatchManual ImportType = "file/batch-manual"
	ImportSiteHTML    ImportType = "file/site-html"
)

// ProcessingType is the per-record outcome discriminant.
type ProcessingType string

// Per-record outcome types.
const (
	ScoreImported       ProcessingType = "ScoreImported"
	InvalidDatapoint    ProcessingType = "InvalidDatapoint"
	SongOrChartNotFound ProcessingType = "SongOrChartNotFound"
	OrphanExists        ProcessingType = "OrphanExists"
	AmbiguousTitle      ProcessingType = "AmbiguousTitle"
	InternalError       ProcessingType = "InternalError"
)
