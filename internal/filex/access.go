//go:build darwin || linux

package filex

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// CheckReadWrite reports whether the current process may read and write
// path, using access(2) so no file is touched.
func CheckReadWrite(path string) error {
	if err := unix.Access(path, unix.R_OK|unix.W_OK); err != nil {
		return fmt.Errorf("access %s: %w", path, err)
	}
	return nil
}
