package sampler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stone-age-io/sysmetrics/internal/hostfs"
	"github.com/stretchr/testify/require"
)

// fakeRoot writes files (relative path -> content) under a temp directory and
// returns a resolver that reads only from it
func fakeRoot(t *testing.T, files map[string]string) *hostfs.Resolver {
	t.Helper()
	root := t.TempDir()
	writeFiles(t, root, files)
	return hostfs.NewWithLocalRoot("", root)
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}
