package jsandy

import (
	"context"
	"errors"
	"testing"

	"gotest.tools/v3/assert"
)

func TestEventEmitter_RunsHandlersInRegistrationOrder(t *testing.T) {
	e := NewEventEmitter[int](nil)
	var order []int

	e.On("tick", func(ctx context.Context, payload int) error {
		order = append(order, 1)
		return nil
	})
	e.On("tick", func(ctx context.Context, payload int) error {
		order = append(order, 2)
		return nil
	})

	assert.NilError(t, e.HandleEvent(context.Background(), "tick", 7))
	assert.DeepEqual(t, order, []int{1, 2})
}

func TestEventEmitter_KeysHandlersByEventName(t *testing.T) {
	e := NewEventEmitter[int](nil)
	var tickCalls, tockCalls int

	e.On("tick", func(ctx context.Context, payload int) error {
		tickCalls++
		return nil
	})
	e.On("tock", func(ctx context.Context, payload int) error {
		tockCalls++
		return nil
	})

	assert.NilError(t, e.HandleEvent(context.Background(), "tick", 1))
	assert.Equal(t, tickCalls, 1)
	assert.Equal(t, tockCalls, 0)

	assert.NilError(t, e.HandleEvent(context.Background(), "unregistered", 1))
	assert.Equal(t, tickCalls, 1)
	assert.Equal(t, tockCalls, 0)
}

func TestEventEmitter_OffRemovesEveryHandlerForEvent(t *testing.T) {
	e := NewEventEmitter[int](nil)
	calls := 0

	e.On("tick", func(ctx context.Context, payload int) error {
		calls++
		return nil
	})
	e.On("tick", func(ctx context.Context, payload int) error {
		calls++
		return nil
	})
	e.Off("tick")

	assert.NilError(t, e.HandleEvent(context.Background(), "tick", 1))
	assert.Equal(t, calls, 0)
	assert.Equal(t, e.HandlerCount(), 0)
}

func TestEventEmitter_UnsubscribeStopsFutureCalls(t *testing.T) {
	e := NewEventEmitter[int](nil)
	calls := 0

	unsubscribe := e.On("tick", func(ctx context.Context, payload int) error {
		calls++
		return nil
	})
	unsubscribe()

	assert.NilError(t, e.HandleEvent(context.Background(), "tick", 1))
	assert.Equal(t, calls, 0)
	assert.Equal(t, e.HandlerCount(), 0)
}

func TestEventEmitter_IsolatesHandlerFailures(t *testing.T) {
	e := NewEventEmitter[int](nil)
	secondRan := false

	e.On("tick", func(ctx context.Context, payload int) error {
		return errors.New("boom")
	})
	e.On("tick", func(ctx context.Context, payload int) error {
		secondRan = true
		return nil
	})

	err := e.HandleEvent(context.Background(), "tick", 1)
	assert.Check(t, secondRan)

	appErr, ok := err.(*Error)
	assert.Check(t, ok)
	assert.Equal(t, appErr.Kind, KindHandlerFailure)
	assert.Equal(t, len(appErr.Details), 1)
}

func TestEventEmitter_RecoversPanickingHandler(t *testing.T) {
	e := NewEventEmitter[int](nil)
	e.On("tick", func(ctx context.Context, payload int) error {
		panic("unexpected")
	})

	err := e.HandleEvent(context.Background(), "tick", 1)
	assert.ErrorContains(t, err, "event handlers failed")
}

func TestEventEmitter_ValidatesAgainstSchema(t *testing.T) {
	// greetInput has no "age" field, so its documents lack a field the
	// schemaFixture schema requires.
	e := NewEventEmitter[greetInput](Input[schemaFixture]())
	e.On("greet", func(ctx context.Context, payload greetInput) error { return nil })

	err := e.HandleEvent(context.Background(), "greet", greetInput{Name: "ada"})
	assert.ErrorContains(t, err, "failed validation")
}
