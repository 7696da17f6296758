package catalog_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/scorepipe/internal/catalog"
	"github.com/okian/scorepipe/internal/domain/model"
)

const seedYAML = `
songs:
  - id: "s1"
    game: iidx
    title: "5.1.1."
    artist: "dj nagureo"
  - id: "s2"
    game: iidx
    title: "Colors"
    artist: "TOMOSUKE"
  - id: "s3"
    game: iidx
    title: "Colors (radio edit)"
    artist: "TOMOSUKE"
  - id: "s4"
    game: iidx
    title: "smooooch"
    altTitles: ["smooooch・∀・"]
    artist: "kors k"
charts:
  - chartID: "c1"
    songID: "s1"
    game: iidx
    playtype: SP
    difficulty: ANOTHER
    level: "10"
    levelNum: 10
    versions: ["30", "31"]
    isPrimary: true
    data:
      inGameID: 1234
      notecount: 1000
  - chartID: "c2"
    songID: "s1"
    game: iidx
    playtype: DP
    difficulty: ANOTHER
    level: "11"
    levelNum: 11
    data:
      inGameID: 1234
      notecount: 1100
folders:
  - folderID: "f10"
    game: iidx
    playtype: SP
    title: "Level 10"
    chartIDs: ["c1"]
`

func newSeeded(t *testing.T) *catalog.Memory {
	t.Helper()
	m := catalog.NewMemory()
	require.NoError(t, m.Load(strings.NewReader(seedYAML)))
	return m
}

func TestFindChart(t *testing.T) {
	ctx := context.Background()
	m := newSeeded(t)
	id := 1234

	c, err := m.FindChart(ctx, catalog.ChartQuery{Game: "iidx", Playtype: "SP", Difficulty: "ANOTHER", InGameID: &id, Version: "31"})
	require.NoError(t, err)
	assert.Equal(t, "c1", c.ChartID)

	c, err = m.FindChart(ctx, catalog.ChartQuery{Game: "iidx", Playtype: "DP", Difficulty: "ANOTHER", InGameID: &id})
	require.NoError(t, err)
	assert.Equal(t, "c2", c.ChartID)

	_, err = m.FindChart(ctx, catalog.ChartQuery{Game: "iidx", Playtype: "SP", Difficulty: "ANOTHER", InGameID: &id, Version: "29"})
	assert.True(t, errors.Is(err, catalog.ErrNotFound))

	_, err = m.FindChart(ctx, catalog.ChartQuery{Game: "iidx"})
	assert.True(t, errors.Is(err, catalog.ErrNotFound))
}

func TestFindSongAndChartOnSong(t *testing.T) {
	ctx := context.Background()
	m := newSeeded(t)

	s, err := m.FindSong(ctx, "iidx", "s1")
	require.NoError(t, err)
	assert.Equal(t, "5.1.1.", s.Title)

	_, err = m.FindSong(ctx, "ddr", "s1")
	assert.ErrorIs(t, err, catalog.ErrNotFound)

	c, err := m.FindChartOnSong(ctx, "iidx", "SP", "s1", "another")
	require.NoError(t, err)
	assert.Equal(t, "c1", c.ChartID)

	_, err = m.FindChartOnSong(ctx, "iidx", "SP", "s1", "HYPER")
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestFindSongsByTitle(t *testing.T) {
	ctx := context.Background()
	m := newSeeded(t)

	tests := []struct {
		name  string
		title string
		want  []string
	}{
		{"exact wins over longer fuzzy match", "colors", []string{"s2"}},
		{"whitespace and case are normalised", "  SMOOOOCH ", []string{"s4"}},
		{"alt title", "smooooch・∀・", []string{"s4"}},
		{"fuzzy subsequence", "radio edit", []string{"s3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			songs, err := m.FindSongsByTitle(ctx, "iidx", tt.title)
			require.NoError(t, err)
			got := make([]string, len(songs))
			for i, s := range songs {
				got[i] = s.ID
			}
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := m.FindSongsByTitle(ctx, "iidx", "zzzzzz")
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestFindSongsByTitle_Ambiguous(t *testing.T) {
	ctx := context.Background()
	m := newSeeded(t)
	m.AddSong(model.Song{ID: "s9", Game: "iidx", Title: "Colors"})

	songs, err := m.FindSongsByTitle(ctx, "iidx", "Colors")
	require.NoError(t, err)
	assert.Len(t, songs, 2)
}

func TestFolders(t *testing.T) {
	ctx := context.Background()
	m := newSeeded(t)

	folders, err := m.FoldersContaining(ctx, "iidx", []string{"c1", "c2"})
	require.NoError(t, err)
	require.Len(t, folders, 1)
	assert.Equal(t, "f10", folders[0].FolderID)

	ids, err := m.ChartsInFolder(ctx, "f10")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, ids)

	_, err = m.ChartsInFolder(ctx, "nope")
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestAdmitChart(t *testing.T) {
	ctx := context.Background()
	m := catalog.NewMemory()
	desc := &model.ChartDescriptor{
		Song:  model.Song{Title: "new song", Artist: "someone"},
		Chart: model.Chart{Game: "bms", Playtype: "7K", Difficulty: "CHART", Data: model.ChartData{HashSHA256: "ABCD"}},
	}

	c, err := m.AdmitChart(ctx, desc)
	require.NoError(t, err)
	assert.NotEmpty(t, c.ChartID)
	assert.NotEmpty(t, c.SongID)

	found, err := m.FindChart(ctx, catalog.ChartQuery{Game: "bms", HashSHA256: "abcd"})
	require.NoError(t, err)
	assert.Equal(t, c.ChartID, found.ChartID)

	again, err := m.AdmitChart(ctx, desc)
	require.NoError(t, err)
	assert.Equal(t, c.ChartID, again.ChartID)
}

func TestLoadRejectsBadSeed(t *testing.T) {
	m := catalog.NewMemory()
	err := m.Load(strings.NewReader("charts:\n  - chartID: x\n    songID: missing\n    game: iidx\n"))
	assert.ErrorIs(t, err, catalog.ErrInvalidSeed)

	err = m.Load(strings.NewReader("unknown_key: 1\n"))
	assert.ErrorIs(t, err, catalog.ErrInvalidSeed)
}
