package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/okian/scorepipe/internal/domain/model"
	"github.com/okian/scorepipe/internal/domain/types"
)

// Memory is an in-process catalog. It is safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	songs   map[string]*model.Song
	charts  map[string]*model.Chart
	folders map[string]*model.Folder

	bySHA256 map[string]*model.Chart
	byMD5    map[string]*model.Chart
	bySong   map[string][]*model.Chart
}

// NewMemory creates an empty catalog.
func NewMemory() *Memory {
	return &Memory{
		songs:    make(map[string]*model.Song),
		charts:   make(map[string]*model.Chart),
		folders:  make(map[string]*model.Folder),
		bySHA256: make(map[string]*model.Chart),
		byMD5:    make(map[string]*model.Chart),
		bySong:   make(map[string][]*model.Chart),
	}
}

func songKey(game types.Game, id string) string { return string(game) + "/" + id }

// AddSong inserts or replaces a song.
func (m *Memory) AddSong(song model.Song) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.songs[songKey(song.Game, song.ID)] = &song
}

// AddChart inserts or replaces a chart. Its song must already exist.
func (m *Memory) AddChart(chart model.Chart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addChartLocked(&chart)
}

func (m *Memory) addChartLocked(chart *model.Chart) error {
	if chart.ChartID == "" {
		return fmt.Errorf("%w: chart without chartID", ErrInvalidSeed)
	}
	if _, ok := m.songs[songKey(chart.Game, chart.SongID)]; !ok {
		return fmt.Errorf("%w: chart %s references unknown song %s", ErrInvalidSeed, chart.ChartID, chart.SongID)
	}
	if old, ok := m.charts[chart.ChartID]; ok {
		m.unindexLocked(old)
	}
	m.charts[chart.ChartID] = chart
	if chart.Data.HashSHA256 != "" {
		m.bySHA256[strings.ToLower(chart.Data.HashSHA256)] = chart
	}
	if chart.Data.HashMD5 != "" {
		m.byMD5[strings.ToLower(chart.Data.HashMD5)] = chart
	}
	key := songKey(chart.Game, chart.SongID)
	m.bySong[key] = append(m.bySong[key], chart)
	return nil
}

func (m *Memory) unindexLocked(chart *model.Chart) {
	delete(m.bySHA256, strings.ToLower(chart.Data.HashSHA256))
	delete(m.byMD5, strings.ToLower(chart.Data.HashMD5))
	key := songKey(chart.Game, chart.SongID)
	list := m.bySong[key]
	for i, c := range list {
		if c.ChartID == chart.ChartID {
			m.bySong[key] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
}

// AddFolder inserts or replaces a folder.
func (m *Memory) AddFolder(folder model.Folder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.folders[folder.FolderID] = &folder
}

// RemoveChart drops a chart, e.g. for tests that simulate a missing chart.
func (m *Memory) RemoveChart(chartID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.charts[chartID]; ok {
		m.unindexLocked(c)
		delete(m.charts, chartID)
	}
}

// FindChart implements Catalog.
func (m *Memory) FindChart(_ context.Context, q ChartQuery) (*model.Chart, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	switch {
	case q.HashSHA256 != "":
		if c, ok := m.bySHA256[strings.ToLower(q.HashSHA256)]; ok && matches(c, q) {
			return c, nil
		}
	case q.HashMD5 != "":
		if c, ok := m.byMD5[strings.ToLower(q.HashMD5)]; ok && matches(c, q) {
			return c, nil
		}
	case q.InGameID != nil:
		for _, c := range m.charts {
			if c.Data.InGameID != nil && *c.Data.InGameID == *q.InGameID && matches(c, q) {
				return c, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: chart", ErrNotFound)
}

func matches(c *model.Chart, q ChartQuery) bool {
	if q.Game != "" && c.Game != q.Game {
		return false
	}
	if q.Playtype != "" && c.Playtype != q.Playtype {
		return false
	}
	if q.Difficulty != "" && c.Difficulty != q.Difficulty {
		return false
	}
	return c.HasVersion(q.Version)
}

// FindSong implements Catalog.
func (m *Memory) FindSong(_ context.Context, game types.Game, songID string) (*model.Song, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.songs[songKey(game, songID)]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: song %s", ErrNotFound, songID)
}

// FindChartOnSong implements Catalog.
func (m *Memory) FindChartOnSong(_ context.Context, game types.Game, playtype types.Playtype, songID, difficulty string) (*model.Chart, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.bySong[songKey(game, songID)] {
		if c.Playtype == playtype && strings.EqualFold(c.Difficulty, difficulty) {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s %s chart on song %s", ErrNotFound, playtype, difficulty, songID)
}

func normaliseTitle(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// FindSongsByTitle implements Catalog. Exact (normalised) title matches win;
// otherwise the closest fuzzy matches are returned.
func (m *Memory) FindSongsByTitle(_ context.Context, game types.Game, title string) ([]*model.Song, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	want := normaliseTitle(title)
	if want == "" {
		return nil, fmt.Errorf("%w: empty title", ErrNotFound)
	}

	var (
		exact   []*model.Song
		targets []string
		owners  []*model.Song
	)
	for _, s := range m.songs {
		if s.Game != game {
			continue
		}
		for _, t := range append([]string{s.Title}, s.AltTitles...) {
			nt := normaliseTitle(t)
			if nt == want {
				exact = appendUnique(exact, s)
			}
			targets = append(targets, nt)
			owners = append(owners, s)
		}
	}
	if len(exact) > 0 {
		sortSongs(exact)
		return exact, nil
	}

	ranks := fuzzy.RankFindNormalizedFold(want, targets)
	if len(ranks) == 0 {
		return nil, fmt.Errorf("%w: title %q", ErrNotFound, title)
	}
	sort.Sort(ranks)
	var best []*model.Song
	for _, r := range ranks {
		if r.Distance != ranks[0].Distance {
			break
		}
		best = appendUnique(best, owners[r.OriginalIndex])
	}
	sortSongs(best)
	return best, nil
}

func appendUnique(list []*model.Song, s *model.Song) []*model.Song {
	for _, x := range list {
		if x == s {
			return list
		}
	}
	return append(list, s)
}

func sortSongs(list []*model.Song) {
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
}

// FoldersContaining implements Catalog.
func (m *Memory) FoldersContaining(_ context.Context, game types.Game, chartIDs []string) ([]*model.Folder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	want := make(map[string]struct{}, len(chartIDs))
	for _, id := range chartIDs {
		want[id] = struct{}{}
	}
	var out []*model.Folder
	for _, f := range m.folders {
		if f.Game != game {
			continue
		}
		for _, id := range f.ChartIDs {
			if _, ok := want[id]; ok {
				out = append(out, f)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FolderID < out[j].FolderID })
	return out, nil
}

// ChartsInFolder implements Catalog.
func (m *Memory) ChartsInFolder(_ context.Context, folderID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.folders[folderID]
	if !ok {
		return nil, fmt.Errorf("%w: folder %s", ErrNotFound, folderID)
	}
	return append([]string(nil), f.ChartIDs...), nil
}

// AdmitChart implements Admitter. Missing IDs are generated; an already
// known chart (same sha256) is returned unchanged.
func (m *Memory) AdmitChart(_ context.Context, desc *model.ChartDescriptor) (*model.Chart, error) {
	if desc == nil {
		return nil, fmt.Errorf("%w: nil descriptor", ErrInvalidSeed)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if h := strings.ToLower(desc.Chart.Data.HashSHA256); h != "" {
		if c, ok := m.bySHA256[h]; ok {
			return c, nil
		}
	}

	song := desc.Song
	if song.ID == "" {
		song.ID = uuid.NewString()
	}
	if song.Game == "" {
		song.Game = desc.Chart.Game
	}
	if _, ok := m.songs[songKey(song.Game, song.ID)]; !ok {
		m.songs[songKey(song.Game, song.ID)] = &song
	}

	chart := desc.Chart
	if chart.ChartID == "" {
		chart.ChartID = uuid.NewString()
	}
	chart.SongID = song.ID
	chart.IsPrimary = true
	if err := m.addChartLocked(&chart); err != nil {
		return nil, err
	}
	return &chart, nil
}
