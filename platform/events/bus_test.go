package events

import (
	"context"
	"strings"
	"testing"
	"time"

	"outreach_backend/platform/logger"
)

type testEvent struct {
	BaseEvent
}

func (e testEvent) EventName() string { return "test.event" }

func TestPublishSyncRecoversHandlerPanic(t *testing.T) {
	bus := NewInMemoryBus(logger.New("development"))

	var secondRan bool
	bus.Subscribe("test.event", HandlerFunc(func(_ context.Context, _ Event) error {
		panic("subscriber blew up")
	}))
	bus.Subscribe("test.event", HandlerFunc(func(_ context.Context, _ Event) error {
		secondRan = true
		return nil
	}))

	err := bus.PublishSync(context.Background(), testEvent{NewBaseEvent()})
	if err == nil || !strings.Contains(err.Error(), "panicked") {
		t.Fatalf("panic not surfaced as error: %v", err)
	}
	if !secondRan {
		t.Fatal("handler after the panicking one did not run")
	}
}

func TestPublishSurvivesHandlerPanic(t *testing.T) {
	bus := NewInMemoryBus(logger.New("development"))

	done := make(chan struct{})
	bus.Subscribe("test.event", HandlerFunc(func(_ context.Context, _ Event) error {
		panic("subscriber blew up")
	}))
	bus.Subscribe("test.event", HandlerFunc(func(_ context.Context, _ Event) error {
		close(done)
		return nil
	}))

	bus.Publish(context.Background(), testEvent{NewBaseEvent()})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler after the panicking one did not run")
	}
}
