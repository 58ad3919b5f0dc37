package realtime

import (
	"fmt"
	"time"

	"github.com/natashamaes/concierge/domain/repositories"
)

// Playback schedules decoded chunks back to back on an output context.
// It is not safe for concurrent use; the owning session calls it from its event loop.
type Playback struct {
	output  repositories.OutputContext
	cursor  time.Duration
	nextID  uint64
	sources map[uint64]repositories.Source
}

// NewPlayback creates an empty schedule on output
func NewPlayback(output repositories.OutputContext) *Playback {
	return &Playback{
		output:  output,
		sources: make(map[uint64]repositories.Source),
	}
}

// Schedule starts buf at max(cursor, now) and advances the cursor by its duration.
// ended is called with the source id when the buffer finishes on its own.
func (p *Playback) Schedule(buf repositories.Buffer, ended func(id uint64)) (uint64, time.Duration, error) {
	start := p.cursor
	if now := p.output.CurrentTime(); now > start {
		start = now
	}

	p.nextID++
	id := p.nextID

	src, err := p.output.Play(buf, start, func() {
		if ended != nil {
			ended(id)
		}
	})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to schedule playback: %w", err)
	}

	p.sources[id] = src
	p.cursor = start + buf.Duration()
	return id, start, nil
}

// Remove forgets a source that ended naturally
func (p *Playback) Remove(id uint64) {
	delete(p.sources, id)
}

// StopAll hard-stops every scheduled source and rewinds the cursor
func (p *Playback) StopAll() {
	for id, src := range p.sources {
		src.Stop()
		delete(p.sources, id)
	}
	p.cursor = 0
}

// Len returns the number of scheduled or playing sources
func (p *Playback) Len() int {
	return len(p.sources)
}

// Cursor returns the time at which the next chunk would start at the earliest
func (p *Playback) Cursor() time.Duration {
	return p.cursor
}
