package process

import (
	"errors"
	"strings"
)

// MaxBufferSize is the largest read a File accepts at once.
const MaxBufferSize = 1 << 20

// send errors
var (
	ErrNotSent = errors.New("message not sent")
	ErrTimeout = errors.New("timeout")
)

// storage errors
var (
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrFileNotFound       = errors.New("file not found")
	ErrFileExists         = errors.New("file already exists")
	ErrStorageFull        = errors.New("storage full")
	ErrBufferSizeExceed   = errors.New("buffer size exceeds limit")
	ErrBadFileName        = errors.New("bad file name")
)

// ValidFileName reports whether name can be used as a file name.
// Names are flat: no separators, no relative components.
func ValidFileName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}

// ValidName reports whether name can be used as a node or a process name.
func ValidName(name string) bool {
	return name != "" && !strings.Contains(name, "/")
}
