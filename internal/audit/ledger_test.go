package audit

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendThenReadAllPreservesOrder(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(filepath.Join(dir, "audit.log"))
	require.NoError(t, err)

	_, err = l.Append("tick-1", KindTickStart, map[string]interface{}{"stage": "OK"})
	require.NoError(t, err)
	_, err = l.Append("tick-1", KindStateTransition, map[string]interface{}{"from": "OK", "to": "REMIND_1"})
	require.NoError(t, err)
	_, err = l.Append("tick-1", KindTickEnd, nil)
	require.NoError(t, err)

	events, err := l.ReadAll()
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, KindTickStart, events[0].Type)
	assert.Equal(t, KindStateTransition, events[1].Type)
	assert.Equal(t, KindTickEnd, events[2].Type)
}

func TestAppendAssignsUniqueEventIDs(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(filepath.Join(dir, "audit.log"))
	require.NoError(t, err)

	ev1, err := l.Append("tick-1", KindTickStart, nil)
	require.NoError(t, err)
	ev2, err := l.Append("tick-1", KindTickEnd, nil)
	require.NoError(t, err)

	assert.NotEmpty(t, ev1.EventID)
	assert.NotEmpty(t, ev2.EventID)
	assert.NotEqual(t, ev1.EventID, ev2.EventID)
}

func TestOpenIsIdempotentOnExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")

	l1, err := Open(path)
	require.NoError(t, err)
	_, err = l1.Append("tick-1", KindTickStart, nil)
	require.NoError(t, err)

	l2, err := Open(path)
	require.NoError(t, err)
	events, err := l2.ReadAll()
	require.NoError(t, err)
	assert.Len(t, events, 1, "re-opening must not truncate existing events")
}
