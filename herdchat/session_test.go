package herdchat

import (
	"context"
	"sync"
	"testing"
)

func TestSessionObserverDrivesLifecycle(t *testing.T) {
	c := NewClient(testConfig())
	var mu sync.Mutex
	var dials int
	c.dial = func(context.Context, string) (transport, error) {
		mu.Lock()
		dials++
		mu.Unlock()
		return newFakeTransport(), nil
	}

	updates := make(chan SessionState)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	obs := NewSessionObserver(c)
	done := make(chan struct{})
	go func() {
		obs.Observe(ctx, updates)
		close(done)
	}()

	updates <- SessionState{UserID: "worker-1", AccessToken: "tok", Authenticated: true}
	waitFor(t, "connect on login", c.IsConnected)
	if c.UserID() != "worker-1" {
		t.Fatalf("unexpected identity: %q", c.UserID())
	}

	updates <- SessionState{Authenticated: false}
	waitFor(t, "disconnect on logout", func() bool { return c.State() == StateClosed })

	// Fresh login after logout reconnects.
	updates <- SessionState{UserID: "worker-1", AccessToken: "tok2", Authenticated: true}
	waitFor(t, "reconnect on fresh login", c.IsConnected)

	mu.Lock()
	got := dials
	mu.Unlock()
	if got != 2 {
		t.Fatalf("expected 2 dials, got %d", got)
	}

	cancel()
	<-done
	waitFor(t, "disconnect on observer exit", func() bool { return c.State() == StateClosed })
}

func TestSessionObserverStopsOnClosedChannel(t *testing.T) {
	c := NewClient(testConfig())
	c.dial = func(context.Context, string) (transport, error) { return newFakeTransport(), nil }

	updates := make(chan SessionState)
	obs := NewSessionObserver(c)
	done := make(chan struct{})
	go func() {
		obs.Observe(context.Background(), updates)
		close(done)
	}()

	close(updates)
	<-done
	if c.State() != StateClosed {
		t.Fatalf("expected CLOSED after observer exit, got %s", c.State())
	}
}
