package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstructionsInMemory(t *testing.T) {
	s, err := Open(Options{InMemory: true})
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	_, found, err := s.Get(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Set(ctx, "Speak like a pirate."))
	text, found, err := s.Get(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "Speak like a pirate.", text)

	require.NoError(t, s.Set(ctx, ""))
	text, found, err = s.Get(ctx)
	require.NoError(t, err)
	assert.True(t, found, "an empty value is still stored")
	assert.Empty(t, text)
}

func TestInstructionsPersistAcrossOpen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(Options{Dir: dir, Profile: "work"})
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "be concise"))
	require.NoError(t, s.Close())

	s, err = Open(Options{Dir: dir, Profile: "work"})
	require.NoError(t, err)
	text, found, err := s.Get(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "be concise", text)
	require.NoError(t, s.Close())

	other, err := Open(Options{Dir: dir, Profile: "home"})
	require.NoError(t, err)
	defer other.Close()
	_, found, err = other.Get(ctx)
	require.NoError(t, err)
	assert.False(t, found, "profiles do not share instructions")
}

func TestLoadSeedsFallback(t *testing.T) {
	s, err := Open(Options{InMemory: true})
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	text, err := s.Load(ctx, "default instructions")
	require.NoError(t, err)
	assert.Equal(t, "default instructions", text)

	require.NoError(t, s.Set(ctx, "custom"))
	text, err = s.Load(ctx, "default instructions")
	require.NoError(t, err)
	assert.Equal(t, "custom", text)
}

func TestOpenRequiresDir(t *testing.T) {
	_, err := Open(Options{})
	assert.Error(t, err)
}

func TestCancelledContext(t *testing.T) {
	s, err := Open(Options{InMemory: true})
	require.NoError(t, err)
	defer s.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Set(ctx, "x"), context.Canceled)
	_, _, err = s.Get(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
