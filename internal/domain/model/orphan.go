package model

import (
	"encoding/json"
	"time"

	"github.com/okian/scorepipe/internal/domain/types"
)

// OrphanChart tracks one unresolved chart fingerprint and every user that
// submitted against it. The descriptor is the first one seen.
type OrphanChart struct {
	Fingerprint string           `json:"fingerprint"`
	Game        types.Game       `json:"game"`
	Playtype    types.Playtype   `json:"playtype"`
	ImportType  types.ImportType `json:"importType"`
	Descriptor  *ChartDescriptor `json:"descriptor,omitempty"`
	Admittable  bool             `json:"admittable"`
	UserIDs     []string         `json:"userIDs"`
	FirstSeen   time.Time        `json:"firstSeen"`
}

// OrphanScore is a single user's raw submission held until its chart resolves.
type OrphanScore struct {
	OrphanID     string           `json:"orphanID"`
	Fingerprint  string           `json:"fingerprint"`
	ImportType   types.ImportType `json:"importType"`
	UserID       string           `json:"userID"`
	Data         json.RawMessage  `json:"data"`
	Context      SourceContext    `json:"context"`
	ErrMsg       string           `json:"errMsg"`
	Game         types.Game       `json:"game"`
	TimeInserted time.Time        `json:"timeInserted"`
}
