package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"codeberg.org/mutker/camvitals/internal/errors"
)

const FileName = "camvitals.pid"

// File is a held PID file. Only one camvitals process may hold the file in
// a given directory, since both write the same history database.
type File struct {
	path string
}

// Acquire writes the current process ID to dir/camvitals.pid. A file left
// behind by a process that no longer runs is taken over.
func Acquire(dir string) (*File, error) {
	errFactory := errors.New()
	path := filepath.Join(dir, FileName)

	if running, err := ownerRunning(path); err != nil {
		return nil, err
	} else if running {
		return nil, errFactory.WithData(errors.ErrAlreadyRunning, path)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		return nil, errFactory.Wrap(errors.ErrInternal, err)
	}

	return &File{path: path}, nil
}

func ownerRunning(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.New().Wrap(errors.ErrInternal, err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		// unreadable content belongs to nobody
		return false, nil
	}
	if pid == os.Getpid() {
		return false, nil
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false, nil
	}

	return process.Signal(syscall.Signal(0)) == nil, nil
}

// Path returns the location of the PID file.
func (f *File) Path() string { return f.path }

// Release removes the PID file.
func (f *File) Release() error {
	if f == nil {
		return nil
	}
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return errors.New().Wrap(errors.ErrInternal, err)
	}

	return nil
}
