package cacheconfig

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/require"
)

// SetTestFlag sets a cacheconfig flag for the duration of the calling test, restoring its prior
// value on cleanup. Flag toggling has no cache-domain shape to adapt — it operates on the global
// flag.CommandLine registry cacheconfig's own package-level vars are bound to, regardless of what
// any individual flag configures — so this stays a plain, generic helper rather than growing
// cache-specific parameters it would never use.
func SetTestFlag(t *testing.T, name, value string) {
	t.Helper()
	f := flag.Lookup(name)
	require.NotNil(t, f, "flag %s not registered", name)
	prev := f.Value.String()
	t.Cleanup(func() { require.NoError(t, flag.Set(name, prev)) })
	require.NoError(t, flag.Set(name, value))
}
