package training

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{Idle, Validated, true},
		{Validated, CachePrepared, true},
		{CachePrepared, ParallelRecipe, true},
		{CachePrepared, NonParallelRecipe, true},
		{ParallelRecipe, Complete, true},
		{NonParallelRecipe, Complete, true},
		{Idle, CachePrepared, false},
		{Validated, ParallelRecipe, false},
		{ParallelRecipe, NonParallelRecipe, false},
		{Idle, Aborted, true},
		{NonParallelRecipe, Aborted, true},
		{Complete, Aborted, false},
		{Aborted, Idle, false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "cache_prepared", CachePrepared.String())
	assert.Equal(t, "state(42)", State(42).String())
}
