package importer

import (
	"time"

	"github.com/okian/scorepipe/pkg/logger"
)

// Option configures an Importer.
type Option func(*Importer)

// WithOrphans enables orphaning of records whose chart is unknown.
func WithOrphans(h OrphanHandler) Option {
	return func(im *Importer) {
		im.orphans = h
	}
}

// WithGoals enables goal re-evaluation after each import.
func WithGoals(g GoalUpdater) Option {
	return func(im *Importer) {
		im.goals = g
	}
}

// WithBatchSize sets the insert queue batch size.
func WithBatchSize(n int) Option {
	return func(im *Importer) {
		if n > 0 {
			im.batchSize = n
		}
	}
}

// WithClock sets the time source for timestamps.
func WithClock(now func() time.Time) Option {
	return func(im *Importer) {
		if now != nil {
			im.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(im *Importer) {
		if l != nil {
			im.logger = l
		}
	}
}
