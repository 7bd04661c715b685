package docmodel

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/osapiref/osapiref/internal/spec"
)

func node(t *testing.T, src string) *spec.Node {
	t.Helper()
	n, err := spec.DecodeYAML([]byte(strings.TrimSpace(src) + "\n"))
	require.NoError(t, err)
	return n
}

func rowNames(rows []FieldRow) []string {
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, r.Name)
	}
	return names
}
