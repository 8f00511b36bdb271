package data

import (
	"dsbuild/process"
	"errors"
	"fmt"
)

// FS is the part of a process context record files live in.
type FS interface {
	CreateFile(name string) (process.File, error)
	OpenFile(name string) (process.File, error)
	DeleteFile(name string) error
}

// Open opens the record file name, creating it if missing, and reads its
// records. A torn tail left by a short write is cut off by writing the
// valid records to a new file in place of the old one.
func Open(fs FS, name string) (*File, []*Record, error) {
	f, err := fs.OpenFile(name)
	if errors.Is(err, process.ErrFileNotFound) {
		f, err = fs.CreateFile(name)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", name, err)
	}
	df := NewFile(f)
	records, err := df.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", name, err)
	}
	if !df.Torn() {
		return df, records, nil
	}

	if err := fs.DeleteFile(name); err != nil {
		return nil, nil, fmt.Errorf("delete %s: %w", name, err)
	}
	if f, err = fs.CreateFile(name); err != nil {
		return nil, nil, fmt.Errorf("create %s: %w", name, err)
	}
	df = NewFile(f)
	for _, r := range records {
		if err := df.Write(r); err != nil {
			return nil, nil, fmt.Errorf("rewrite %s: %w", name, err)
		}
	}
	return df, records, nil
}
