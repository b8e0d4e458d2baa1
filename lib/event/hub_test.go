// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"testing"
	"time"

	"github.com/bureau-foundation/edge-desktop/lib/testutil"
)

func TestHubDeliversInOrderToEverySubscriber(t *testing.T) {
	hub := NewHub()
	first := hub.Subscribe()
	second := hub.Subscribe()

	for attempt := 1; attempt <= 3; attempt++ {
		hub.Publish(ReconnectFailure{Source: SourceData, Attempt: attempt})
	}

	for _, subscription := range []*Subscription{first, second} {
		for want := 1; want <= 3; want++ {
			received := testutil.RequireReceive(t, subscription.C, time.Second, "event %d", want)
			if failure := received.(ReconnectFailure); failure.Attempt != want {
				t.Fatalf("Attempt = %d, want %d", failure.Attempt, want)
			}
		}
	}
}

func TestHubClosedSubscriptionReleasesPublisher(t *testing.T) {
	hub := NewHub()
	subscription := hub.Subscribe()

	for range SubscriptionBufferSize {
		hub.Publish(ShutdownEvent{Source: SourceData})
	}

	published := make(chan struct{})
	go func() {
		hub.Publish(ShutdownEvent{Source: SourceData})
		close(published)
	}()
	testutil.RequireNoReceive(t, published, 20*time.Millisecond, "publish into full buffer")

	subscription.Close()
	testutil.RequireClosed(t, published, time.Second, "publish after subscriber closed")
}

func TestHubCloseClosesChannels(t *testing.T) {
	hub := NewHub()
	subscription := hub.Subscribe()
	hub.Close()

	if _, ok := <-subscription.C; ok {
		t.Error("subscription channel still open after Hub.Close")
	}
	hub.Publish(ShutdownEvent{})

	late := hub.Subscribe()
	if _, ok := <-late.C; ok {
		t.Error("subscription to closed hub is open")
	}
}
