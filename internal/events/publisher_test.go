package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPublisher_PublishSubscribe(t *testing.T) {
	p := NewMemoryPublisher()
	defer p.Close()

	ch := p.Subscribe("run-1")

	p.Publish(Event{RunID: "run-1", Stage: StageInit, Message: "loading project"})

	select {
	case e := <-ch:
		assert.Equal(t, StageInit, e.Stage)
		assert.Equal(t, "loading project", e.Message)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestMemoryPublisher_GlobalSubscriber(t *testing.T) {
	p := NewMemoryPublisher()
	defer p.Close()

	global := p.Subscribe(GlobalRunID)

	p.Publish(Event{RunID: "run-a", Stage: StageDiff})
	p.Publish(Event{RunID: "run-b", Stage: StageSync})

	var got []Stage
	for i := 0; i < 2; i++ {
		select {
		case e := <-global:
			got = append(got, e.Stage)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for global event")
		}
	}
	assert.Equal(t, []Stage{StageDiff, StageSync}, got)
}

func TestMemoryPublisher_OrderPreserved(t *testing.T) {
	p := NewMemoryPublisher()
	defer p.Close()

	ch := p.Subscribe("run-1")

	stages := []Stage{StageInit, StageDiff, StageSync, StageAI, StageRag, StageComplete}
	for _, s := range stages {
		p.Publish(Event{RunID: "run-1", Stage: s})
	}

	for _, want := range stages {
		select {
		case e := <-ch:
			assert.Equal(t, want, e.Stage)
		case <-time.After(time.Second):
			t.Fatal("timed out")
		}
	}
}

func TestMemoryPublisher_FullBufferDoesNotBlock(t *testing.T) {
	p := NewMemoryPublisher(WithBufferSize(1))
	defer p.Close()

	_ = p.Subscribe("run-1")

	// Second publish must not block even though nobody drains the channel.
	done := make(chan struct{})
	go func() {
		p.Publish(Event{RunID: "run-1", Stage: StageInit})
		p.Publish(Event{RunID: "run-1", Stage: StageDiff})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on full subscriber buffer")
	}
}

func TestMemoryPublisher_CloseClosesSubscribers(t *testing.T) {
	p := NewMemoryPublisher()
	ch := p.Subscribe("run-1")

	p.Close()

	_, open := <-ch
	assert.False(t, open)

	// Subscribing after close returns a closed channel.
	ch2 := p.Subscribe("run-2")
	_, open = <-ch2
	assert.False(t, open)

	// Publishing after close is a no-op.
	p.Publish(Event{RunID: "run-1", Stage: StageInit})
}

func TestSink_NilSafe(t *testing.T) {
	var s Sink
	// Must not panic.
	s.Emit(StageInit, "ignored", nil)
}

func TestSinkFor(t *testing.T) {
	p := NewMemoryPublisher()
	defer p.Close()

	ch := p.Subscribe("run-42")
	sink := SinkFor(p, "run-42")
	require.NotNil(t, sink)

	sink.Emit(StageAI, "re-evaluating 3 issues", map[string]any{"candidates": 3})

	select {
	case e := <-ch:
		assert.Equal(t, "run-42", e.RunID)
		assert.Equal(t, StageAI, e.Stage)
		assert.Equal(t, 3, e.Fields["candidates"])
		assert.False(t, e.Time.IsZero())
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}

func TestSinkFor_NilPublisher(t *testing.T) {
	assert.Nil(t, SinkFor(nil, "run-1"))
}
