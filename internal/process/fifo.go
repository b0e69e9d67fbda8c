package process

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"

	mimicerr "mimic/internal/errors"
)

// MakeFIFO removes whatever is at path and creates a fresh named pipe
// there.  A pipe left over from an earlier run can hold stale readers
// and hang the new pipeline, so it is never reused.
func MakeFIFO(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove stale pipe %s: %w", path, err)
	}
	if err := unix.Mkfifo(path, 0o666); err != nil {
		return fmt.Errorf("mkfifo %s: %w", path, err)
	}
	return nil
}

// LookPath is the lookup used by CheckTools; tests replace it.
var LookPath = exec.LookPath

// CheckTools verifies every named executable is resolvable, returning a
// ToolingMissingError for the first one that is not.
func CheckTools(names ...string) error {
	for _, name := range names {
		if _, err := LookPath(name); err != nil {
			return &mimicerr.ToolingMissingError{Tool: name}
		}
	}
	return nil
}
