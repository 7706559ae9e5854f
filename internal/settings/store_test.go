package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_LoadUserFallsBackToFactoryWhenNoUserFile(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	v, err := store.LoadUser()
	require.NoError(t, err)
	assert.Equal(t, Default(), v)
}

func TestStore_SaveThenLoadUserRoundTrips(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	want := Default()
	want.Prefix = true
	want.FastMask = 0x03
	want.SuppressMask[0] = 0x80

	require.NoError(t, store.SaveUser(want))

	got, err := store.LoadUser()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStore_LoadFactoryFallsBackToDefaultWhenMissing(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	v, err := store.LoadFactory()
	require.NoError(t, err)
	assert.Equal(t, Default(), v)
}

func TestStore_SaveFactoryThenLoadFactoryRoundTrips(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	want := Default()
	want.OutputBaud = Baud115200

	require.NoError(t, store.SaveFactory(want))

	got, err := store.LoadFactory()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStore_ResetToFactoryWritesUserCopy(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	factory := Default()
	factory.FastMask = 0x01
	require.NoError(t, store.SaveFactory(factory))
	require.NoError(t, store.SaveUser(Settings{FastMask: 0xFF}))

	got, err := store.ResetToFactory()
	require.NoError(t, err)
	assert.Equal(t, factory, got)

	reloaded, err := store.LoadUser()
	require.NoError(t, err)
	assert.Equal(t, factory, reloaded, "reset must persist the factory copy as the new user copy")
}
