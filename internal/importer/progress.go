package importer

import (
	"context"
	"sync"
)

// Progress is a progress report for a running import.
type Progress struct {
	Description string `json:"description"`
	Processed   int    `json:"processed"`
}

// ProgressSink receives progress after every record.
type ProgressSink interface {
	UpdateProgress(ctx context.Context, p Progress) error
}

// ProgressFunc adapts a function to ProgressSink.
type ProgressFunc func(ctx context.Context, p Progress) error

// UpdateProgress implements ProgressSink.
func (f ProgressFunc) UpdateProgress(ctx context.Context, p Progress) error { return f(ctx, p) }

// ProgressRecorder keeps the latest report.
type ProgressRecorder struct {
	mu      sync.Mutex
	last    Progress
	updates int
}

// UpdateProgress implements ProgressSink.
func (p *ProgressRecorder) UpdateProgress(_ context.Context, pr Progress) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = pr
	p.updates++
	return nil
}

// Last returns the latest report and how many were received.
func (p *ProgressRecorder) Last() (Progress, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last, p.updates
}
