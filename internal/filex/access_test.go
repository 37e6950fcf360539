//go:build darwin || linux

package filex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckReadWrite(t *testing.T) {
	tmp := t.TempDir()
	p := filepath.Join(tmp, "sent.txt")
	require.NoError(t, os.WriteFile(p, nil, 0o600))

	require.NoError(t, CheckReadWrite(p))
	require.Error(t, CheckReadWrite(filepath.Join(tmp, "missing")))

	if os.Geteuid() != 0 {
		require.NoError(t, os.Chmod(p, 0o400))
		require.Error(t, CheckReadWrite(p))
	}
}
