// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package edgetest

import (
	"context"
	"sync"

	"github.com/bureau-foundation/edge-desktop/lib/codec"
	"github.com/bureau-foundation/edge-desktop/lib/ipc"
)

const subscriberBuffer = 128

// broadcaster fans frames out to subscribe streams. A subscriber that
// falls subscriberBuffer frames behind is disconnected; the client
// resynchronizes from the snapshot it gets on reconnect.
type broadcaster struct {
	mu          sync.Mutex
	subscribers map[chan ipc.Frame]struct{}
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subscribers: make(map[chan ipc.Frame]struct{})}
}

// add registers a subscriber whose first frame is initial. Callers
// hold their own state lock across snapshot and add so no push can
// slip between them.
func (b *broadcaster) add(initial ipc.Frame) chan ipc.Frame {
	channel := make(chan ipc.Frame, subscriberBuffer)
	channel <- initial
	b.mu.Lock()
	b.subscribers[channel] = struct{}{}
	b.mu.Unlock()
	return channel
}

func (b *broadcaster) remove(channel chan ipc.Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[channel]; ok {
		delete(b.subscribers, channel)
		close(channel)
	}
}

func (b *broadcaster) push(frame ipc.Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for channel := range b.subscribers {
		select {
		case channel <- frame:
		default:
			delete(b.subscribers, channel)
			close(channel)
		}
	}
}

// disconnectAll ends every subscribe stream after the frames already
// queued are written.
func (b *broadcaster) disconnectAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for channel := range b.subscribers {
		delete(b.subscribers, channel)
		close(channel)
	}
}

func (b *broadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// serve writes frames from channel until it closes or ctx ends.
func (b *broadcaster) serve(ctx context.Context, channel chan ipc.Frame, encoder *codec.Encoder) error {
	defer b.remove(channel)
	for {
		select {
		case <-ctx.Done():
			return nil
		case frame, ok := <-channel:
			if !ok {
				return nil
			}
			if err := encoder.Encode(frame); err != nil {
				return err
			}
		}
	}
}
