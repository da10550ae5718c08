package resource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryManager_NewMemoriesAreRaw(t *testing.T) {
	mm := NewMemoryManager(3)

	require.Equal(t, 3, mm.Len())
	for i, m := range mm.Memories() {
		assert.Equal(t, i, m.Index)
		assert.Equal(t, MemoryRaw, m.State)
	}
}

func TestMemoryManager_MemoriesReturnsCopies(t *testing.T) {
	mm := NewMemoryManager(1)

	view := mm.Memories()
	view[0].State = MemoryExpired

	m, _ := mm.Memory(0)
	assert.Equal(t, MemoryRaw, m.State)
}

func TestMemoryManager_Update_ClearsOwnership(t *testing.T) {
	mm := NewMemoryManager(1)
	require.NoError(t, mm.occupy(0))
	mm.bind(0, "p")
	mm.setRemote(0, RemoteMemory{Node: "b", Slot: 1})

	require.NoError(t, mm.Update(0, MemoryRaw))

	m, _ := mm.Memory(0)
	assert.Empty(t, m.Protocol)
	assert.Nil(t, m.Remote)
}

func TestMemoryManager_Occupy_Twice_Fails(t *testing.T) {
	mm := NewMemoryManager(1)
	require.NoError(t, mm.occupy(0))

	assert.ErrorIs(t, mm.occupy(0), ErrDoubleClaim)
}

func TestMemoryManager_InvalidInput(t *testing.T) {
	mm := NewMemoryManager(1)

	assert.ErrorIs(t, mm.Update(1, MemoryRaw), ErrUnknownMemory)
	assert.ErrorIs(t, mm.Update(0, "HALF"), ErrInvalidMemoryState)
	_, ok := mm.Memory(-1)
	assert.False(t, ok)
}

func TestRuleManager_PreservesRegistrationOrder(t *testing.T) {
	rules := NewRuleManager()
	rules.Load(&stateRule{name: "b"})
	rules.Load(&stateRule{name: "a"})

	require.Equal(t, 2, rules.Len())
	assert.Equal(t, "b", rules.Rules()[0].Name())
	assert.Equal(t, "a", rules.Rules()[1].Name())
}

func TestConditionRegistry_Kinds(t *testing.T) {
	reg := NewConditionRegistry()
	reg.Register("custom", func(Protocol, map[string]string, string) bool { return false })

	assert.Equal(t, []string{ConditionAny, "custom", ConditionPairing, ConditionStatus}, reg.Kinds())
}
