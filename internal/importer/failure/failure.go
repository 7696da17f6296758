// Package failure defines the closed set of typed failures a converter or
// validator can produce for a single record.
package failure

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/okian/scorepipe/internal/domain/model"
	"github.com/okian/scorepipe/internal/domain/types"
)

// Kind discriminates failures without reflection.
type Kind string

// Failure kinds.
const (
	KindInvalidScore        Kind = "InvalidScore"
	KindSongOrChartNotFound Kind = "SongOrChartNotFound"
	KindAmbiguousTitle      Kind = "AmbiguousTitle"
	KindSkipScore           Kind = "SkipScore"
	KindInternal            Kind = "Internal"
)

// Failure is implemented only by the types in this package.
type Failure interface {
	error
	Kind() Kind
	sealed()
}

// InvalidScore means the submitted data is wrong. The submitter can fix it.
type InvalidScore struct {
	Msg string
}

// SongOrChartNotFound means the catalog cannot resolve the chart yet. It
// carries everything needed to retry the conversion later.
type SongOrChartNotFound struct {
	Msg        string
	ImportType types.ImportType
	Data       json.RawMessage
	Context    model.SourceContext
	Game       types.Game
	Playtype   types.Playtype

	// Fingerprint identifies the unresolved chart across users.
	Fingerprint string
	// Descriptor is the best-known description of the chart, if any.
	Descriptor *model.ChartDescriptor
	// Admittable marks charts that corroboration alone may add to the catalog.
	Admittable bool
}

// AmbiguousTitle means a title matched more than one song.
type AmbiguousTitle struct {
	Msg   string
	Title string
}

// SkipScore drops the record silently.
type SkipScore struct {
	Msg string
}

// Internal signals catalog corruption rather than bad input.
type Internal struct {
	Msg string
}

func (e *InvalidScore) Error() string        { return e.Msg }
func (e *SongOrChartNotFound) Error() string { return e.Msg }
func (e *AmbiguousTitle) Error() string      { return e.Msg }
func (e *SkipScore) Error() string           { return e.Msg }
func (e *Internal) Error() string            { return e.Msg }

func (*InvalidScore) Kind() Kind        { return KindInvalidScore }
func (*SongOrChartNotFound) Kind() Kind { return KindSongOrChartNotFound }
func (*AmbiguousTitle) Kind() Kind      { return KindAmbiguousTitle }
func (*SkipScore) Kind() Kind           { return KindSkipScore }
func (*Internal) Kind() Kind            { return KindInternal }

func (*InvalidScore) sealed()        {}
func (*SongOrChartNotFound) sealed() {}
func (*AmbiguousTitle) sealed()      {}
func (*SkipScore) sealed()           {}
func (*Internal) sealed()            {}

// Invalidf builds an InvalidScore.
func Invalidf(format string, args ...any) *InvalidScore {
	return &InvalidScore{Msg: fmt.Sprintf(format, args...)}
}

// Skipf builds a SkipScore.
func Skipf(format string, args ...any) *SkipScore {
	return &SkipScore{Msg: fmt.Sprintf(format, args...)}
}

// Internalf builds an Internal failure.
func Internalf(format string, args ...any) *Internal {
	return &Internal{Msg: fmt.Sprintf(format, args...)}
}

// Ambiguous builds an AmbiguousTitle for title.
func Ambiguous(title string) *AmbiguousTitle {
	return &AmbiguousTitle{
		Msg:   fmt.Sprintf("Multiple songs matched the title %q.", title),
		Title: title,
	}
}

// As extracts a Failure from err.
func As(err error) (Failure, bool) {
	var f Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
