package notify

import (
	"context"
	"sync"
)

// Sent is one dispatch recorded by Capture.
type Sent struct {
	To    ChannelRef
	Embed Embed
}

// Capture records dispatches in memory. Err, when set, is returned from
// every Dispatch after recording.
type Capture struct {
	mu   sync.Mutex
	sent []Sent
	Err  error
}

func (c *Capture) Dispatch(_ context.Context, to ChannelRef, e Embed) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, Sent{To: to, Embed: e})
	return c.Err
}

// Sent returns a copy of everything dispatched so far.
func (c *Capture) Sent() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Sent, len(c.sent))
	copy(out, c.sent)
	return out
}

// To returns the embeds dispatched to ref.
func (c *Capture) To(ref ChannelRef) []Embed {
	var out []Embed
	for _, s := range c.Sent() {
		if s.To == ref {
			out = append(out, s.Embed)
		}
	}
	return out
}

// Reset forgets everything recorded.
func (c *Capture) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = nil
}
