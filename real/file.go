package real

import (
	"dsbuild/process"
	"dsbuild/storage/fio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
)

// FileManager keeps the files of a node under its mount directory. Open
// files are shared by the processes of the node.
type FileManager struct {
	mu    sync.Mutex
	dir   string
	files map[string]*fio.FileIO
}

func NewFileManager(dir string) (*FileManager, error) {
	if err := os.MkdirAll(dir, fio.DataDirPerm); err != nil {
		return nil, err
	}
	return &FileManager{dir: dir, files: make(map[string]*fio.FileIO)}, nil
}

func (fm *FileManager) path(name string) (string, error) {
	if !process.ValidFileName(name) {
		return "", fmt.Errorf("%w: %q", process.ErrBadFileName, name)
	}
	return filepath.Join(fm.dir, name), nil
}

func (fm *FileManager) Create(name string) (process.File, error) {
	path, err := fm.path(name)
	if err != nil {
		return nil, err
	}
	fm.mu.Lock()
	defer fm.mu.Unlock()
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: %q", process.ErrFileExists, name)
	}
	return fm.open(name, path)
}

func (fm *FileManager) Open(name string) (process.File, error) {
	path, err := fm.path(name)
	if err != nil {
		return nil, err
	}
	fm.mu.Lock()
	defer fm.mu.Unlock()
	if _, ok := fm.files[name]; !ok {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %q", process.ErrFileNotFound, name)
		}
	}
	return fm.open(name, path)
}

func (fm *FileManager) open(name, path string) (process.File, error) {
	if f, ok := fm.files[name]; ok {
		return &realFile{io: f}, nil
	}
	f, err := fio.NewFileIOManager(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", process.ErrStorageUnavailable, err)
	}
	fm.files[name] = f
	return &realFile{io: f}, nil
}

func (fm *FileManager) Exists(name string) (bool, error) {
	path, err := fm.path(name)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", process.ErrStorageUnavailable, err)
	}
}

func (fm *FileManager) Delete(name string) error {
	path, err := fm.path(name)
	if err != nil {
		return err
	}
	fm.mu.Lock()
	defer fm.mu.Unlock()
	if f, ok := fm.files[name]; ok {
		_ = f.Close()
		delete(fm.files, name)
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %q", process.ErrFileNotFound, name)
		}
		return fmt.Errorf("%w: %v", process.ErrStorageUnavailable, err)
	}
	return nil
}

func (fm *FileManager) Close() error {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	var errs []error
	for name, f := range fm.files {
		errs = append(errs, f.Close())
		delete(fm.files, name)
	}
	return errors.Join(errs...)
}

type realFile struct {
	io *fio.FileIO
}

func (f *realFile) Read(b []byte, offset int64) (int, error) {
	if len(b) > process.MaxBufferSize {
		return 0, process.ErrBufferSizeExceed
	}
	n, err := f.io.Read(b, offset)
	if err != nil {
		return n, fileError(err)
	}
	return n, nil
}

func (f *realFile) Append(b []byte) (int, error) {
	n, err := f.io.Write(b)
	if err != nil {
		if n > 0 && errors.Is(err, syscall.ENOSPC) {
			return n, nil
		}
		return n, fileError(err)
	}
	return n, nil
}

func fileError(err error) error {
	switch {
	case errors.Is(err, syscall.ENOSPC):
		return process.ErrStorageFull
	case errors.Is(err, fio.ErrClosed):
		return process.ErrFileNotFound
	default:
		return fmt.Errorf("%w: %v", process.ErrStorageUnavailable, err)
	}
}
