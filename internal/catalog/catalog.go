// Package catalog is the read side of the song/chart catalog the pipeline
// resolves records against.
package catalog

import (
	"context"

	"github.com/okian/scorepipe/internal/domain/model"
	"github.com/okian/scorepipe/internal/domain/types"
)

// ChartQuery selects a chart by whichever source keys a converter has.
// Zero-valued fields are ignored.
type ChartQuery struct {
	Game       types.Game
	Playtype   types.Playtype
	Difficulty string
	Version    string
	InGameID   *int
	HashSHA256 string
	HashMD5    string
}

// Catalog resolves songs and charts. Lookups that find nothing return an
// error wrapping ErrNotFound.
type Catalog interface {
	FindChart(ctx context.Context, q ChartQuery) (*model.Chart, error)
	FindSong(ctx context.Context, game types.Game, songID string) (*model.Song, error)
	// FindSongsByTitle returns the best title matches. More than one result
	// means the title is ambiguous.
	FindSongsByTitle(ctx context.Context, game types.Game, title string) ([]*model.Song, error)
	FindChartOnSong(ctx context.Context, game types.Game, playtype types.Playtype, songID, difficulty string) (*model.Chart, error)

	FoldersContaining(ctx context.Context, game types.Game, chartIDs []string) ([]*model.Folder, error)
	ChartsInFolder(ctx context.Context, folderID string) ([]string, error)
}

// Admitter adds a chart described by an orphan to the catalog.
type Admitter interface {
	AdmitChart(ctx context.Context, desc *model.ChartDescriptor) (*model.Chart, error)
}
