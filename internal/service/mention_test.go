package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bold(s string) string { return "**" + s + "**" }

func TestMatchAutocompletesWordBoundary(t *testing.T) {
	f := newFixture(t)
	th := f.thread(t)

	out, matched, err := MatchAutocompletes(context.Background(), th,
		"hi @bob and @bobby, ping @alice. mail bob@x @bob_2", f.erin.ID, bold)
	require.NoError(t, err)
	assert.Equal(t, "hi **@bob** and @bobby, ping **@alice**. mail bob@x @bob_2", out)

	tags := make([]string, 0, len(matched))
	for _, m := range matched {
		tags = append(tags, m.Tag)
	}
	assert.ElementsMatch(t, []string{"alice", "bob"}, tags)
}

func TestMatchAutocompletesRepeatedAndAdjacent(t *testing.T) {
	f := newFixture(t)
	th := f.thread(t)

	out, matched, err := MatchAutocompletes(context.Background(), th, "@erin@erin @erin", f.alice.ID, bold)
	require.NoError(t, err)
	assert.Equal(t, "**@erin****@erin** **@erin**", out)
	assert.Len(t, matched, 1)
}

func TestMatchAutocompletesNonParticipant(t *testing.T) {
	f := newFixture(t)
	th := f.thread(t)

	out, matched, err := MatchAutocompletes(context.Background(), th, "hey @bob", f.dave.ID, bold)
	require.NoError(t, err)
	assert.Equal(t, "hey @bob", out)
	assert.Empty(t, matched)
}
