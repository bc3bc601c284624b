package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Stage
		want     bool
	}{
		{StageGreeting, StageIdentityCollection, true},
		{StageGreeting, StageActiveOrdering, true},
		{StageIdentityCollection, StageAddressCollection, true},
		{StageAddressCollection, StageActiveOrdering, true},
		{StageActiveOrdering, StageFinalized, true},
		{StageFinalized, StageEnded, true},
		{StageGreeting, StageEnded, true},
		{StageIdentityCollection, StageActiveOrdering, false},
		{StageGreeting, StageFinalized, false},
		{StageFinalized, StageActiveOrdering, false},
		{StageEnded, StageGreeting, false},
		{StageEnded, StageEnded, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestParseFlag(t *testing.T) {
	f, err := ParseFlag("order_started")
	assert.NoError(t, err)
	assert.Equal(t, FlagOrderStarted, f)

	_, err = ParseFlag("bogus")
	assert.Error(t, err)
}
