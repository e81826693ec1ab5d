package driver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransitionValidEdges(t *testing.T) {
	cases := []struct {
		from State
		ev   Event
		want State
	}{
		{Loading, EventMetadataLoaded, Proposing},
		{Loading, EventTargetReached, Terminated},
		{Proposing, EventCandidateProduced, Scoring},
		{Proposing, EventFlushTriggered, Flushing},
		{Scoring, EventScoreSucceeded, Saving},
		{Scoring, EventParticleError, Proposing},
		{Saving, EventSaved, Loading},
		{Flushing, EventFlushed, Loading},
	}
	for _, c := range cases {
		got, ok := Transition(c.from, c.ev)
		assert.True(t, ok, "expected %v -%v-> to be valid", c.from, c.ev)
		assert.Equal(t, c.want, got)
	}
}

func TestTransitionFatalFromAnyNonTerminalState(t *testing.T) {
	for _, s := range []State{Loading, Proposing, Scoring, Saving, Flushing} {
		got, ok := Transition(s, EventFatal)
		assert.True(t, ok)
		assert.Equal(t, Failed, got)
	}
}

func TestTransitionInvalidEdgesRejected(t *testing.T) {
	_, ok := Transition(Loading, EventScoreSucceeded)
	assert.False(t, ok)

	_, ok = Transition(Saving, EventCandidateProduced)
	assert.False(t, ok)
}

func TestTransitionTerminalStatesAreSticky(t *testing.T) {
	for _, ev := range []Event{EventMetadataLoaded, EventFatal, EventSaved} {
		got, ok := Transition(Terminated, ev)
		assert.False(t, ok)
		assert.Equal(t, Terminated, got)

		got, ok = Transition(Failed, ev)
		assert.False(t, ok)
		assert.Equal(t, Failed, got)
	}
}
