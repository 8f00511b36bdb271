package fio

import "errors"

// Manager is an append-only file: random reads, appends at the end.
type Manager interface {
	// Read reads into b from offset. Reading at or past the end returns 0 and no error.
	Read(b []byte, offset int64) (int, error)
	// Write appends b.
	Write(b []byte) (int, error)
	Sync() error
	Close() error
	Size() (int64, error)
	Name() string
}

type IOType uint8

var (
	ErrClosed  = errors.New("file closed")
	ErrNoSpace = errors.New("no space left")
)

const (
	DataFilePerm = 0644
	DataDirPerm  = 0755
)

const (
	FIO IOType = iota
	Memory
)

// NewManager opens a manager of the given type. Memory managers created
// here are unbounded.
func NewManager(filename string, ioType IOType) (Manager, error) {
	switch ioType {
	case FIO:
		return NewFileIOManager(filename)
	case Memory:
		return NewMemIO(filename, NewSpace(0)), nil
	default:
		panic("unsupported io type")
	}
}
