//go:build !unix

package sandbox

import (
	"fmt"
	"os"
)

// OpenNoFollow opens path, refusing an existing symlink in the final
// component.
func OpenNoFollow(path string, flag int, perm os.FileMode) (*os.File, error) {
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return nil, &os.PathError{Op: "open", Path: path, Err: fmt.Errorf("refusing to follow symlink")}
	}
	return os.OpenFile(path, flag, perm)
}
