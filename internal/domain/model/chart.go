package model

import "github.com/okian/scorepipe/internal/domain/types"

// ChartData holds the in-game identifiers a converter matches on.
type ChartData struct {
	InGameID   *int   `json:"inGameID,omitempty" yaml:"inGameID,omitempty"`
	HashSHA256 string `json:"hashSHA256,omitempty" yaml:"hashSHA256,omitempty"`
	HashMD5    string `json:"hashMD5,omitempty" yaml:"hashMD5,omitempty"`
	NoteCount  int    `json:"notecount,omitempty" yaml:"notecount,omitempty"`
}

// Chart is one playable difficulty of a song.
type Chart struct {
	ChartID    string         `json:"chartID" yaml:"chartID"`
	SongID     string         `json:"songID" yaml:"songID"`
	Game       types.Game     `json:"game" yaml:"game"`
	Playtype   types.Playtype `json:"playtype" yaml:"playtype"`
	Difficulty string         `json:"difficulty" yaml:"difficulty"`
	Level      string         `json:"level" yaml:"level"`
	LevelNum   float64        `json:"levelNum" yaml:"levelNum"`
	Versions   []string       `json:"versions,omitempty" yaml:"versions,omitempty"`
	IsPrimary  bool           `json:"isPrimary" yaml:"isPrimary"`
	Data       ChartData      `json:"data" yaml:"data"`
}

// HasVersion reports whether the chart exists in the given game version.
// An empty version matches anything.
func (c *Chart) HasVersion(version string) bool {
	if version == "" || len(c.Versions) == 0 {
		return true
	}
	for _, v := range c.Versions {
		if v == version {
			return true
		}
	}
	return false
}

// Song is the catalog entry a chart belongs to.
type Song struct {
	ID        string     `json:"id" yaml:"id"`
	Game      types.Game `json:"game" yaml:"game"`
	Title     string     `json:"title" yaml:"title"`
	Artist    string     `json:"artist" yaml:"artist"`
	AltTitles []string   `json:"altTitles,omitempty" yaml:"altTitles,omitempty"`
}

// Folder groups charts, e.g. "Level 12" or a version folder.
type Folder struct {
	FolderID string         `json:"folderID" yaml:"folderID"`
	Game     types.Game     `json:"game" yaml:"game"`
	Playtype types.Playtype `json:"playtype" yaml:"playtype"`
	Title    string         `json:"title" yaml:"title"`
	ChartIDs []string       `json:"chartIDs" yaml:"chartIDs"`
}

// ChartDescriptor is the best-known description of a chart the catalog does
// not have yet. Orphans carry it so the chart can be admitted later.
type ChartDescriptor struct {
	Song  Song  `json:"song"`
	Chart Chart `json:"chart"`
}
