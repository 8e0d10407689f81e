package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaults_FallBackWhenUnset(t *testing.T) {
	// Version/Commit/BuildTime are populated by init() from -ldflags; in a test binary none are
	// set, so they should fall back to "unknown" rather than being left empty.
	assert.Equal(t, "unknown", Version)
	assert.Equal(t, "unknown", Commit)
	assert.Equal(t, "unknown", BuildTime)
	assert.False(t, StartTime.IsZero())
}
