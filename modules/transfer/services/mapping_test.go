package services

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIdentifierMappingFirstWriterWins(t *testing.T) {
	m := NewIdentifierMapping()
	require.True(t, m.Record("c1", "idX"))
	require.False(t, m.Record("c1", "idZ"))
	require.False(t, m.Record("", "idY"))

	id, ok := m.Lookup("c1")
	require.True(t, ok)
	require.Equal(t, "idX", id)
	require.Equal(t, "unmapped", m.Resolve("unmapped"))
	require.Equal(t, 1, m.Len())
}

func TestMergeMappingsKeepsEarlierTables(t *testing.T) {
	caps := NewIdentifierMapping()
	caps.Record("x1", "cap-1")
	caps.Record("x2", "cap-2")
	apps := NewIdentifierMapping()
	apps.Record("x2", "app-9")
	apps.Record("a1", "app-1")

	merged := MergeMappings(caps, nil, apps)
	require.Equal(t, 3, merged.Len())
	require.Equal(t, "cap-2", merged.Resolve("x2"))
	require.Equal(t, []MappingEntry{
		{OriginalID: "x1", StoreID: "cap-1"},
		{OriginalID: "x2", StoreID: "cap-2"},
		{OriginalID: "a1", StoreID: "app-1"},
	}, merged.Entries())
}

func TestNilMappingResolvesToInput(t *testing.T) {
	var m *IdentifierMapping
	require.Equal(t, "id", m.Resolve("id"))
	require.Zero(t, m.Len())
}
