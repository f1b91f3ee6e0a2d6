package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var got []Event
	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return got
			}
			got = append(got, evt)
		case <-time.After(2 * time.Second):
			t.Fatal("event channel never closed")
		}
	}
}

func TestRunLifecycle(t *testing.T) {
	reg := NewRegistry()
	run := reg.Create("owner/repo")

	info := run.Info()
	assert.Equal(t, RunQueued, info.Status)
	assert.Equal(t, "owner/repo", info.Repo)
	assert.NotEmpty(t, info.ID)

	run.start()
	assert.Equal(t, RunRunning, run.Info().Status)

	run.complete("snap-1.json", 0)
	info = run.Info()
	assert.Equal(t, RunCompleted, info.Status)
	assert.Equal(t, "snap-1.json", info.Handle)

	got, ok := reg.Get(info.ID)
	require.True(t, ok)
	assert.Same(t, run, got)

	_, ok = reg.Get("nope")
	assert.False(t, ok)
}

func TestSubscribeReplaysFinishedRun(t *testing.T) {
	reg := NewRegistry()
	run := reg.Create("owner/repo")
	run.start()
	run.complete("snap-1.json", 2)

	ch, cancel := run.Subscribe()
	defer cancel()

	events := drain(t, ch)
	require.Len(t, events, 3)
	assert.Equal(t, RunQueued, events[0].Status)
	assert.Equal(t, RunRunning, events[1].Status)
	assert.Equal(t, RunCompleted, events[2].Status)
	assert.Equal(t, "snap-1.json", events[2].Handle)
	assert.Equal(t, 2, events[2].Failures)
}

func TestSubscribeReceivesLiveEvents(t *testing.T) {
	reg := NewRegistry()
	run := reg.Create("owner/repo")

	ch, cancel := run.Subscribe()
	defer cancel()

	run.start()
	run.fail("clone timed out")

	events := drain(t, ch)
	require.Len(t, events, 3)
	assert.Equal(t, RunFailed, events[2].Status)
	assert.Equal(t, "clone timed out", events[2].Message)
	assert.Equal(t, "clone timed out", run.Info().Error)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	reg := NewRegistry()
	run := reg.Create("owner/repo")

	ch, cancel := run.Subscribe()
	cancel()
	cancel() // idempotent

	run.start()
	run.complete("snap-1.json", 0)

	events := drain(t, ch)
	require.Len(t, events, 1)
	assert.Equal(t, RunQueued, events[0].Status)
}

func TestFinishedRunIgnoresLateEvents(t *testing.T) {
	reg := NewRegistry()
	run := reg.Create("owner/repo")
	run.complete("snap-1.json", 0)
	run.fail("too late")

	assert.Equal(t, RunCompleted, run.Info().Status)
	assert.Empty(t, run.Info().Error)
}
