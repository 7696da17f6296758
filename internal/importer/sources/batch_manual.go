package sources

import (
	"encoding/json"
	"fmt"
	"io"
	"iter"

	"github.com/okian/scorepipe/internal/domain/model"
	"github.com/okian/scorepipe/internal/domain/types"
)

// BatchManualMeta is the header of a batch-manual document.
type BatchManualMeta struct {
	Game     types.Game     `json:"game"`
	Playtype types.Playtype `json:"playtype"`
	Service  string         `json:"service"`
	Version  string         `json:"version,omitempty"`
}

type batchManualDoc struct {
	Meta   BatchManualMeta   `json:"meta"`
	Scores []json.RawMessage `json:"scores"`
}

// BatchManual is a parsed batch-manual document.
type BatchManual struct {
	Meta   BatchManualMeta
	scores []json.RawMessage
}

// ParseBatchManual reads a whole document. Rows are left raw for the
// converter; only the header is checked here.
func ParseBatchManual(r io.Reader) (*BatchManual, error) {
	var doc batchManualDoc
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	if doc.Meta.Game == "" || doc.Meta.Playtype == "" {
		return nil, fmt.Errorf("%w: meta.game and meta.playtype are required", ErrInvalidDocument)
	}
	if doc.Meta.Service == "" {
		doc.Meta.Service = "batch-manual"
	}
	return &BatchManual{Meta: doc.Meta, scores: doc.Scores}, nil
}

// Context is the converter context for every row.
func (b *BatchManual) Context() model.SourceContext {
	return model.SourceContext{
		Service:  b.Meta.Service,
		Game:     b.Meta.Game,
		Playtype: b.Meta.Playtype,
		Version:  b.Meta.Version,
	}
}

// Len returns the number of rows.
func (b *BatchManual) Len() int { return len(b.scores) }

// Records yields every row in document order.
func (b *BatchManual) Records() iter.Seq2[json.RawMessage, error] {
	return func(yield func(json.RawMessage, error) bool) {
		for _, s := range b.scores {
			if !yield(s, nil) {
				return
			}
		}
	}
}
