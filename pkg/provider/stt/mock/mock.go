// Package mock provides a test double for the stt.Provider interface.
//
// Example:
//
//	p := &mock.Provider{Text: "turn on the light"}
//	text, err := p.Transcribe(ctx, stt.Request{WAV: wav})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxgate/pkg/provider/stt"
)

var _ stt.Provider = (*Provider)(nil)

// Provider is a mock implementation of stt.Provider. It is safe for
// concurrent use.
type Provider struct {
	mu sync.Mutex

	// Text is returned by Transcribe.
	Text string

	// Err, if non-nil, is returned by Transcribe.
	Err error

	// Block, if non-nil, makes Transcribe wait until it is closed or the
	// context is cancelled. Use it to hold a handoff in flight.
	Block chan struct{}

	// Started, if non-nil, receives a value each time Transcribe is entered.
	Started chan struct{}

	// Calls records every request in order.
	Calls []stt.Request
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (string, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, req)
	text, err, block, started := p.Text, p.Err, p.Block, p.Started
	p.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return text, err
}

// CallCount returns the number of Transcribe calls so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// LastCall returns the most recent request, or the zero value if none.
func (p *Provider) LastCall() stt.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Calls) == 0 {
		return stt.Request{}
	}
	return p.Calls[len(p.Calls)-1]
}
