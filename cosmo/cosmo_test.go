package cosmo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	c, err := New(70, 0.3, 0.05, 2.725)
	require.NoError(t, err)
	assert.InDelta(t, 0.7, c.OmegaL(), 1e-12)

	_, err = New(0, 0.3, 0.05, 2.725)
	assert.Error(t, err)
	_, err = New(70, 1.5, 0.05, 2.725)
	assert.Error(t, err)
	_, err = New(70, 0.3, 0.4, 2.725)
	assert.Error(t, err)
}

func TestHubble(t *testing.T) {
	c, err := New(70, 0.3, 0.05, 2.725)
	require.NoError(t, err)

	// H(0) = H0, and H grows monotonically with z.
	assert.InDelta(t, 70, c.H(0), 1e-12)
	assert.Greater(t, c.H(1), c.H(0))
	assert.Greater(t, c.H(2), c.H(1))

	// At z = 1: E^2 = 0.3*8 + 0.7 = 3.1.
	assert.InDelta(t, 3.1, c.E(1)*c.E(1), 1e-12)
}
