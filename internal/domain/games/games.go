// Package games holds the per game:playtype rules the pipeline needs: grade
// boundaries, lamp order, cross-field score validators and pluggable rating
// calculators.
package games

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/okian/scorepipe/internal/domain/model"
	"github.com/okian/scorepipe/internal/domain/types"
)

// ScoreValidator checks one cross-field invariant. It returns the violation
// message, or "" when the score is consistent.
type ScoreValidator func(doc *model.ScoreDocument, chart *model.Chart) string

// RatingCalc derives one rating for a score. A nil result means the rating
// does not apply to this score.
type RatingCalc func(doc *model.ScoreDocument, chart *model.Chart) *float64

// GradeBoundary is the lowest percent that earns Name.
type GradeBoundary struct {
	Name       string
	LowerBound float64
}

// Implementation is the rule set for one game:playtype.
type Implementation struct {
	GPT        types.GPT
	Lamps      []string
	Grades     []GradeBoundary
	Validators []ScoreValidator
	ScoreCalcs map[string]RatingCalc

	// Percent converts a raw score into a percentage for chart.
	Percent func(score float64, chart *model.Chart) (float64, error)
}

// Registry maps game:playtype keys to implementations.
type Registry struct {
	mu    sync.RWMutex
	impls map[types.GPT]*Implementation
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{impls: make(map[types.GPT]*Implementation)}
}

// Default returns a registry with every shipped implementation.
func Default() *Registry {
	r := NewRegistry()
	for _, impl := range []*Implementation{
		iidx(types.PlaytypeSP), iidx(types.PlaytypeDP),
		bms(types.Playtype7K), bms(types.Playtype14K),
		ddr(types.PlaytypeSP), ddr(types.PlaytypeDP),
		gitadora(types.PlaytypeGita), gitadora(types.PlaytypeDora),
	} {
		r.Register(impl)
	}
	return r
}

// Register adds or replaces an implementation.
func (r *Registry) Register(impl *Implementation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.impls[impl.GPT] = impl
}

// Get returns the implementation for gpt.
func (r *Registry) Get(gpt types.GPT) (*Implementation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	impl, ok := r.impls[gpt]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGPT, gpt)
	}
	return impl, nil
}

// SetScoreCalc plugs a rating calculator into an existing implementation.
func (r *Registry) SetScoreCalc(gpt types.GPT, name string, calc RatingCalc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	impl, ok := r.impls[gpt]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownGPT, gpt)
	}
	if impl.ScoreCalcs == nil {
		impl.ScoreCalcs = make(map[string]RatingCalc)
	}
	impl.ScoreCalcs[name] = calc
	return nil
}

// Grade returns the best grade whose lower bound percent reaches.
func (i *Implementation) Grade(percent float64) string {
	grade := ""
	for _, b := range i.Grades {
		// boundaries are fractional (e.g. 200/9); tolerate float noise
		if percent+1e-9 >= b.LowerBound {
			grade = b.Name
		}
	}
	return grade
}

// LampIndex returns the position of lamp in the lamp order, or -1.
func (i *Implementation) LampIndex(lamp string) int {
	for idx, l := range i.Lamps {
		if l == lamp {
			return idx
		}
	}
	return -1
}

// GradeIndex returns the position of grade in the grade order, or -1.
func (i *Implementation) GradeIndex(grade string) int {
	for idx, g := range i.Grades {
		if g.Name == grade {
			return idx
		}
	}
	return -1
}

// Metric keys usable in goal criteria.
const (
	MetricScore   = "score"
	MetricPercent = "percent"
	MetricLamp    = "lamp"
	MetricGrade   = "grade"
)

// MetricValue returns a comparable number for key on doc. Enum metrics are
// returned as their index.
func (i *Implementation) MetricValue(doc *model.ScoreDocument, key string) (float64, bool) {
	switch key {
	case MetricScore:
		return doc.ScoreData.Score, true
	case MetricPercent:
		return doc.ScoreData.Percent, true
	case MetricLamp:
		idx := i.LampIndex(doc.ScoreData.Lamp)
		return float64(idx), idx >= 0
	case MetricGrade:
		idx := i.GradeIndex(doc.Grade)
		return float64(idx), idx >= 0
	default:
		return 0, false
	}
}

// FormatMetric renders a metric value for humans.
func (i *Implementation) FormatMetric(key string, value float64) string {
	switch key {
	case MetricLamp:
		if idx := int(value); idx >= 0 && idx < len(i.Lamps) {
			return i.Lamps[idx]
		}
	case MetricGrade:
		if idx := int(value); idx >= 0 && idx < len(i.Grades) {
			return i.Grades[idx].Name
		}
	case MetricPercent:
		return fmt.Sprintf("%.2f%%", value)
	}
	return fmt.Sprintf("%d", int64(math.Round(value)))
}

// Names lists the registered keys in order.
func (r *Registry) Names() []types.GPT {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.GPT, 0, len(r.impls))
	for k := range r.impls {
		out = append(out, k)
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}
