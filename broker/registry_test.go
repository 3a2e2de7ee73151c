package broker

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plugnet/wire"
)

func TestRegistryInsertAndGet(t *testing.T) {
	reg := NewRegistry()
	id := uuid.New()

	rec, err := reg.Insert(id, 4)
	require.NoError(t, err)
	assert.Equal(t, id, rec.ID)

	got, ok := reg.Get(id)
	assert.True(t, ok)
	assert.Same(t, rec, got)
}

func TestRegistryInsertDuplicateRejected(t *testing.T) {
	reg := NewRegistry()
	id := uuid.New()

	_, err := reg.Insert(id, 4)
	require.NoError(t, err)

	_, err = reg.Insert(id, 4)
	assert.ErrorIs(t, err, ErrDuplicatePlug)
}

func TestRegistryRemoveOnlyExactMatch(t *testing.T) {
	reg := NewRegistry()
	id := uuid.New()

	rec, err := reg.Insert(id, 4)
	require.NoError(t, err)

	other := newPlugRecord(id, 4)
	reg.Remove(id, other)
	_, ok := reg.Get(id)
	assert.True(t, ok, "remove with a stale record reference must not delete the live one")

	reg.Remove(id, rec)
	_, ok = reg.Get(id)
	assert.False(t, ok)
}

func TestPlugRecordSnapshotAndSetPower(t *testing.T) {
	rec := newPlugRecord(uuid.New(), 4)

	_, power := rec.Snapshot()
	assert.Equal(t, wire.PowerUnknown, power)

	rec.SetPower(wire.PowerOn)
	_, power = rec.Snapshot()
	assert.Equal(t, wire.PowerOn, power)
}

func TestPlugRecordPostRespectsCapacity(t *testing.T) {
	rec := newPlugRecord(uuid.New(), 1)

	cmd1, _ := NewCommand(CommandQueryStatus)
	require.NoError(t, rec.Post(cmd1))

	cmd2, _ := NewCommand(CommandQueryStatus)
	assert.ErrorIs(t, rec.Post(cmd2), ErrInboxFull)
}

func TestPlugRecordPostAfterRemoveFails(t *testing.T) {
	reg := NewRegistry()
	id := uuid.New()

	rec, err := reg.Insert(id, 4)
	require.NoError(t, err)

	reg.Remove(id, rec)

	cmd, _ := NewCommand(CommandQueryStatus)
	assert.ErrorIs(t, rec.Post(cmd), ErrInboxClosed)
}

func TestRegistryListSnapshotsAllRecords(t *testing.T) {
	reg := NewRegistry()
	idA, idB := uuid.New(), uuid.New()

	recA, err := reg.Insert(idA, 4)
	require.NoError(t, err)
	recA.SetPower(wire.PowerOn)

	_, err = reg.Insert(idB, 4)
	require.NoError(t, err)

	entries := reg.List()
	assert.Len(t, entries, 2)

	byID := make(map[uuid.UUID]ListEntry)
	for _, e := range entries {
		byID[e.ID] = e
	}
	assert.Equal(t, wire.PowerOn, byID[idA].Power)
	assert.Equal(t, wire.PowerUnknown, byID[idB].Power)
}
