package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/momentumbot/internal/domain"
)

func TestMemoryStore_GetAdjust(t *testing.T) {
	m := NewMemoryStore(&memWeightStore{})

	assert.Equal(t, 1, m.Get("AAAUSDT"))
	assert.Equal(t, 2, m.Adjust("AAAUSDT", 1))
	assert.Equal(t, 0, m.Adjust("BBBUSDT", -1))
	assert.Equal(t, -1, m.Adjust("BBBUSDT", -1))

	assert.Equal(t, []domain.SymbolWeight{
		{Symbol: "AAAUSDT", Weight: 2},
		{Symbol: "BBBUSDT", Weight: -1},
	}, m.Snapshot())
}

func TestMemoryStore_LoadSave(t *testing.T) {
	ctx := context.Background()
	store := &memWeightStore{weights: []domain.SymbolWeight{
		{Symbol: "AAAUSDT", Weight: 3},
		{Symbol: "BBBUSDT", Weight: 0},
		{Symbol: "AAAUSDT", Weight: 5},
	}}
	m := NewMemoryStore(store)
	require.NoError(t, m.Load(ctx))

	assert.Equal(t, 5, m.Get("AAAUSDT"), "last duplicate wins")
	assert.Equal(t, 0, m.Get("BBBUSDT"))

	m.Adjust("CCCUSDT", 1)
	require.NoError(t, m.Save(ctx))
	assert.Equal(t, []domain.SymbolWeight{
		{Symbol: "AAAUSDT", Weight: 5},
		{Symbol: "BBBUSDT", Weight: 0},
		{Symbol: "CCCUSDT", Weight: 2},
	}, store.weights)

	// reloading what was saved does not change any weight
	again := NewMemoryStore(store)
	require.NoError(t, again.Load(ctx))
	assert.Equal(t, m.Snapshot(), again.Snapshot())
}

func TestMemoryStore_LoadError(t *testing.T) {
	m := NewMemoryStore(&memWeightStore{loadErr: domain.ErrPersistence})
	err := m.Load(context.Background())
	assert.True(t, errors.Is(err, domain.ErrPersistence))
}
