package pd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidTopology_ZeroCountersAlwaysPass(t *testing.T) {
	t.Parallel()
	require.True(t, validTopology(5, 9, 0, 0))
}

func TestValidTopology_MatchingCountersPass(t *testing.T) {
	t.Parallel()
	require.True(t, validTopology(5, 9, 5, 9))
}

func TestValidTopology_MismatchedEtbFails(t *testing.T) {
	t.Parallel()
	require.False(t, validTopology(5, 9, 6, 9))
}

func TestValidTopology_MismatchedOpTrnFails(t *testing.T) {
	t.Parallel()
	require.False(t, validTopology(5, 9, 5, 1))
}

func TestValidTopology_PartialWildcardPasses(t *testing.T) {
	t.Parallel()
	require.True(t, validTopology(5, 9, 0, 9))
	require.True(t, validTopology(5, 9, 5, 0))
}
