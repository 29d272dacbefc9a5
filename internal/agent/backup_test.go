package agent

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileChecksum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dump.sql.gz")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))

	sum, size, err := fileChecksum(path)
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)
	// sha256("hello")
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", sum)
}

func TestFileChecksum_Missing(t *testing.T) {
	_, _, err := fileChecksum(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
