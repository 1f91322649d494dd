package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/policy"
	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/statestore"
	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/timeeval"
)

func docAtStage(stage string) *statestore.Document {
	return &statestore.Document{
		Escalation: statestore.Escalation{Stage: stage},
	}
}

func TestMatchPredicateStateIs(t *testing.T) {
	p := policy.Predicate{Atoms: []policy.Atom{{Op: "state_is", Value: "OK"}}}

	ok, err := MatchPredicate(p, docAtStage("OK"), timeeval.Fields{})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = MatchPredicate(p, docAtStage("REMIND_1"), timeeval.Fields{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMatchPredicateStateIn(t *testing.T) {
	p := policy.Predicate{Atoms: []policy.Atom{
		{Op: "state_in", Value: []interface{}{"OK", "REMIND_1"}},
	}}

	ok, err := MatchPredicate(p, docAtStage("REMIND_1"), timeeval.Fields{})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = MatchPredicate(p, docAtStage("FULL"), timeeval.Fields{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMatchPredicateTimeComparisons(t *testing.T) {
	doc := docAtStage("OK")
	tf := timeeval.Fields{TimeToDeadlineMin: 300, OverdueMin: 0}

	cases := []struct {
		op    string
		value int
		want  bool
	}{
		{"lte", 360, true},
		{"lte", 100, false},
		{"gte", 300, true},
		{"gt", 300, false},
		{"lt", 301, true},
		{"eq", 300, true},
	}
	for _, c := range cases {
		p := policy.Predicate{Atoms: []policy.Atom{
			{Path: "time.time_to_deadline_minutes", Op: c.op, Value: c.value},
		}}
		ok, err := MatchPredicate(p, doc, tf)
		require.NoError(t, err)
		assert.Equal(t, c.want, ok, "op=%s value=%d", c.op, c.value)
	}
}

func TestMatchPredicateConjunctionRequiresAllAtoms(t *testing.T) {
	p := policy.Predicate{Atoms: []policy.Atom{
		{Op: "state_is", Value: "OK"},
		{Path: "time.overdue_minutes", Op: "gte", Value: 120},
	}}
	tf := timeeval.Fields{OverdueMin: 50}

	ok, err := MatchPredicate(p, docAtStage("OK"), tf)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMatchPredicateBooleanField(t *testing.T) {
	doc := docAtStage("OK")
	doc.Renewal.RenewedThisTick = true

	p := policy.Predicate{Atoms: []policy.Atom{
		{Path: "renewal.renewed_this_tick", Op: "eq", Value: true},
	}}
	ok, err := MatchPredicate(p, doc, timeeval.Fields{})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMatchPredicateMissingPathComparesAsZero(t *testing.T) {
	doc := docAtStage("OK")
	p := policy.Predicate{Atoms: []policy.Atom{
		{Path: "escalation.nonexistent_field", Op: "eq", Value: 0},
	}}
	ok, err := MatchPredicate(p, doc, timeeval.Fields{})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMatchPredicateEmptyConjunctionMatchesEverything(t *testing.T) {
	p := policy.Predicate{}
	ok, err := MatchPredicate(p, docAtStage("OK"), timeeval.Fields{})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMatchAtomUnknownOperatorErrors(t *testing.T) {
	p := policy.Predicate{Atoms: []policy.Atom{{Op: "bogus", Value: "x"}}}
	_, err := MatchPredicate(p, docAtStage("OK"), timeeval.Fields{})
	assert.Error(t, err)
}
