package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/wicaksana/gema/domain/entities"
	"github.com/wicaksana/gema/internal/protocol"
)

func newHubClient(clientID string) *Client {
	deps := testDeps(&scriptedPipeline{}, &recordingSink{})
	c := &Client{
		deps:   deps,
		send:   make(chan outbound, deps.SendQueueSize),
		closed: make(chan struct{}),
	}
	c.engine = newEngine(&fakeSender{}, nil, "dev1", deps)
	c.engine.session.Identity = entities.DeviceIdentity{DeviceID: "dev1", ClientID: clientID}
	c.state.Store(entities.StateIdle)
	return c
}

func newTestHub() *Hub {
	deps := testDeps(&scriptedPipeline{}, &recordingSink{})
	return NewHub(deps.Metrics, deps.Logger)
}

func TestRegisterAndGet(t *testing.T) {
	hub := newTestHub()
	client := newHubClient("c1")

	hub.Register("dev1", client)

	got, ok := hub.Get("dev1")
	if !ok || got != client {
		t.Fatal("registered client not found")
	}
}

func TestRegisterSupersedesPreviousClient(t *testing.T) {
	hub := newTestHub()
	first := newHubClient("c1")
	second := newHubClient("c2")

	hub.Register("dev1", first)
	hub.Register("dev1", second)

	if got, _ := hub.Get("dev1"); got != second {
		t.Fatal("registry does not point at the newest client")
	}

	// The old client is told to shut down with a superseded error.
	select {
	case ev := <-first.engine.events:
		req, ok := ev.(shutdownRequest)
		if !ok {
			t.Fatalf("event = %T, want shutdownRequest", ev)
		}
		if req.code != protocol.CodeSuperseded {
			t.Errorf("code = %s, want superseded", req.code)
		}
	case <-time.After(time.Second):
		t.Fatal("superseded client never notified")
	}
}

func TestConcurrentRegistrationsKeepOneWinner(t *testing.T) {
	hub := newTestHub()

	const n = 16
	clients := make([]*Client, n)
	for i := range clients {
		clients[i] = newHubClient(fmt.Sprintf("c%d", i))
	}

	var wg sync.WaitGroup
	for _, client := range clients {
		wg.Add(1)
		go func(client *Client) {
			defer wg.Done()
			hub.Register("dev1", client)
		}(client)
	}
	wg.Wait()

	winner, ok := hub.Get("dev1")
	if !ok {
		t.Fatal("no client registered after the race")
	}

	// Every loser gets exactly one supersede notification; the winner none.
	for _, client := range clients {
		if client == winner {
			continue
		}
		select {
		case ev := <-client.engine.events:
			if req, isShutdown := ev.(shutdownRequest); !isShutdown || req.code != protocol.CodeSuperseded {
				t.Fatalf("loser got %T %+v, want superseded shutdown", ev, ev)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("a superseded client was never notified")
		}
	}
	select {
	case ev := <-winner.engine.events:
		t.Fatalf("winner got unexpected event %T", ev)
	default:
	}
}

func TestRemoveIsPointerGuarded(t *testing.T) {
	hub := newTestHub()
	first := newHubClient("c1")
	second := newHubClient("c2")

	hub.Register("dev1", first)
	hub.Register("dev1", second)

	// The superseded client's teardown must not evict its successor.
	hub.Remove("dev1", first)
	if got, ok := hub.Get("dev1"); !ok || got != second {
		t.Fatal("successor was evicted by a stale removal")
	}

	hub.Remove("dev1", second)
	if _, ok := hub.Get("dev1"); ok {
		t.Fatal("client still registered after its own removal")
	}
}

func TestDevicesSnapshot(t *testing.T) {
	hub := newTestHub()
	client := newHubClient("c1")
	client.setPublishedState(entities.StateListening)

	hub.Register("dev1", client)

	devices := hub.Devices()
	if len(devices) != 1 {
		t.Fatalf("len(devices) = %d, want 1", len(devices))
	}
	row := devices[0]
	if row.DeviceID != "dev1" || row.ClientID != "c1" || row.State != entities.StateListening {
		t.Errorf("snapshot = %+v", row)
	}
}

func TestPushSpeakRequiresConnection(t *testing.T) {
	hub := newTestHub()
	err := hub.PushSpeak(context.Background(), "dev1", "hello")
	if !errors.Is(err, ErrDeviceNotConnected) {
		t.Errorf("err = %v, want ErrDeviceNotConnected", err)
	}
}
