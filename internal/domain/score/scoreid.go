// Package score derives score identity, validates cross-field invariants and
// hydrates dry scores into persisted documents.
package score

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"github.com/okian/scorepipe/internal/domain/model"
	"github.com/okian/scorepipe/internal/domain/types"
)

const elementSep = "\x1f"

// ComputeScoreID returns the deterministic identifier of a play. Time,
// service and comment are not part of it, so the same play reported by two
// sources collapses into one score.
func ComputeScoreID(gpt types.GPT, userID string, dry *model.DryScore, chartID string) string {
	sd := dry.ScoreData
	elements := []string{
		string(gpt),
		userID,
		chartID,
		formatFloat(sd.Score),
		formatFloat(sd.Percent),
		sd.Lamp,
		joinSorted(sd.Judgements, func(v int) string { return strconv.Itoa(v) }),
		joinSorted(sd.Optional, func(v *float64) string {
			if v == nil {
				return "null"
			}
			return formatFloat(*v)
		}),
	}
	sum := sha256.Sum256([]byte(strings.Join(elements, elementSep)))
	return "T" + hex.EncodeToString(sum[:])
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func joinSorted[V any](m map[string]V, format func(V) string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + format(m[k])
	}
	return strings.Join(parts, ",")
}
