package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStoreLoadsInitialConfig(t *testing.T) {
	path := writeConfigFile(t, `
port: 8080
upstreams:
  - name: chan-a
    service-type: claude
    api-keys: ["k1"]
`)

	store, err := NewStore(path)
	require.NoError(t, err)
	assert.Equal(t, 8080, store.Get().Port)
}

func TestStoreReloadPicksUpFileChanges(t *testing.T) {
	path := writeConfigFile(t, `
port: 8080
upstreams: []
`)

	store, err := NewStore(path)
	require.NoError(t, err)
	assert.Equal(t, 8080, store.Get().Port)

	require.NoError(t, os.WriteFile(path, []byte("port: 9090\nupstreams: []\n"), 0o644))
	require.NoError(t, store.Reload())
	assert.Equal(t, 9090, store.Get().Port)
}

func TestStoreReloadCarriesForwardDeprioritizedKeyOrder(t *testing.T) {
	path := writeConfigFile(t, `
port: 8080
upstreams:
  - name: chan-a
    service-type: claude
    api-keys: ["k1", "k2", "k3"]
`)

	store, err := NewStore(path)
	require.NoError(t, err)

	// Simulate a quota-driven deprioritization moving k1 to the end.
	store.Get().ReplaceKeyOrder("chan-a", []string{"k2", "k3", "k1"})

	// Reload with an unrelated field changed but the same key set.
	require.NoError(t, os.WriteFile(path, []byte(`
port: 9090
upstreams:
  - name: chan-a
    service-type: claude
    api-keys: ["k1", "k2", "k3"]
`), 0o644))
	require.NoError(t, store.Reload())

	ch, ok := store.Get().Channel("chan-a")
	require.True(t, ok)
	assert.Equal(t, []string{"k2", "k3", "k1"}, ch.APIKeys)
}

func TestStoreReloadUsesFreshOrderWhenKeySetChanges(t *testing.T) {
	path := writeConfigFile(t, `
port: 8080
upstreams:
  - name: chan-a
    service-type: claude
    api-keys: ["k1", "k2"]
`)

	store, err := NewStore(path)
	require.NoError(t, err)
	store.Get().ReplaceKeyOrder("chan-a", []string{"k2", "k1"})

	require.NoError(t, os.WriteFile(path, []byte(`
port: 8080
upstreams:
  - name: chan-a
    service-type: claude
    api-keys: ["k1", "k2", "k4"]
`), 0o644))
	require.NoError(t, store.Reload())

	ch, ok := store.Get().Channel("chan-a")
	require.True(t, ok)
	assert.Equal(t, []string{"k1", "k2", "k4"}, ch.APIKeys)
}

func TestStoreReloadErrorLeavesPreviousConfigInPlace(t *testing.T) {
	path := writeConfigFile(t, `
port: 8080
upstreams: []
`)

	store, err := NewStore(path)
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))
	assert.Error(t, store.Reload())
	assert.Equal(t, 8080, store.Get().Port)
}
