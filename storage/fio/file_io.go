package fio

import (
	"errors"
	"io"
	"os"
	"sync"
)

// FileIO is a Manager on top of an os.File.
type FileIO struct {
	mu   sync.Mutex
	fd   *os.File
	name string
}

func NewFileIOManager(filename string) (*FileIO, error) {
	fd, err := os.OpenFile(
		filename,
		os.O_CREATE|os.O_RDWR|os.O_APPEND,
		DataFilePerm,
	)
	if err != nil {
		return nil, err
	}
	return &FileIO{fd: fd, name: filename}, nil
}

func (fio *FileIO) Read(b []byte, offset int64) (int, error) {
	fio.mu.Lock()
	defer fio.mu.Unlock()
	if fio.fd == nil {
		return 0, ErrClosed
	}
	n, err := fio.fd.ReadAt(b, offset)
	if errors.Is(err, io.EOF) {
		return n, nil
	}
	return n, err
}

func (fio *FileIO) Write(b []byte) (int, error) {
	fio.mu.Lock()
	defer fio.mu.Unlock()
	if fio.fd == nil {
		return 0, ErrClosed
	}
	return fio.fd.Write(b)
}

func (fio *FileIO) Sync() error {
	fio.mu.Lock()
	defer fio.mu.Unlock()
	if fio.fd == nil {
		return ErrClosed
	}
	return fio.fd.Sync()
}

func (fio *FileIO) Close() error {
	fio.mu.Lock()
	defer fio.mu.Unlock()
	if fio.fd == nil {
		return nil
	}
	err := fio.fd.Close()
	fio.fd = nil
	return err
}

func (fio *FileIO) Size() (int64, error) {
	fio.mu.Lock()
	defer fio.mu.Unlock()
	if fio.fd == nil {
		return 0, ErrClosed
	}
	stat, err := fio.fd.Stat()
	if err != nil {
		return 0, err
	}
	return stat.Size(), nil
}

func (fio *FileIO) Name() string {
	return fio.name
}
