package converters

import "errors"

// ErrUnknownImportType is returned when no converter is registered.
var ErrUnknownImportType = errors.New("no converter for import type")
