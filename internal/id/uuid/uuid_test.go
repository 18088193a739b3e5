package uuid

import (
	"testing"

	goUUID "github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// TestGeneratorNewRawID ensures generated IDs are unique, time ordered v7 UUIDs.
func TestGeneratorNewRawID(t *testing.T) {
	t.Parallel()

	gen := New()
	id1, err := gen.NewRawID()
	require.NoError(t, err)
	id2, err := gen.NewRawID()
	require.NoError(t, err)

	require.NotEqual(t, id1, id2)
	require.Equal(t, goUUID.Version(7), id1.Version())
	require.LessOrEqual(t, id1.String()[:8], id2.String()[:8])
}
