package testhelpers

import (
	"context"
	"sync"

	"github.com/samber/lo"

	"roomrelay/backend/internal/fanout"
)

// RecordingPublisher keeps every published envelope.
type RecordingPublisher struct {
	mu        sync.Mutex
	envelopes []fanout.Envelope
}

func (p *RecordingPublisher) Publish(_ context.Context, env fanout.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.envelopes = append(p.envelopes, env)
	return nil
}

// Envelopes returns a copy of what was published so far.
func (p *RecordingPublisher) Envelopes() []fanout.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]fanout.Envelope(nil), p.envelopes...)
}

// Types returns the event names published so far, in order.
func (p *RecordingPublisher) Types() []string {
	return lo.Map(p.Envelopes(), func(env fanout.Envelope, _ int) string { return env.Event.Type })
}
