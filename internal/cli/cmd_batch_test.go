package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestBatchFileParsing(t *testing.T) {
	raw := []byte(`
- project: 1
  branch: main
  commit: abc123
  pr: 42
- project: 2
  branch: develop
  commit: def456
`)

	var entries []batchEntry
	require.NoError(t, yaml.Unmarshal(raw, &entries))
	require.Len(t, entries, 2)

	assert.Equal(t, int64(1), entries[0].Project)
	assert.Equal(t, "main", entries[0].Branch)
	assert.Equal(t, "abc123", entries[0].Commit)
	assert.Equal(t, int64(42), entries[0].Pr)

	assert.Equal(t, "develop", entries[1].Branch)
	assert.Zero(t, entries[1].Pr)
}

func TestBatchCmdRequiresFile(t *testing.T) {
	cmd := newBatchCmd()
	cmd.SetArgs([]string{})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file")
}
