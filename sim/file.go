package sim

import (
	"dsbuild/process"
	"dsbuild/storage/fio"
	"errors"
	"fmt"
)

func newMemFile(name string, st *nodeStorage) *fio.MemIO {
	return fio.NewMemIO(name, st.space)
}

// simFile is a file in the storage of a simulated node. Reads and appends
// take time proportional to the number of bytes.
type simFile struct {
	c    *simContext
	name string
	mem  *fio.MemIO
}

func (f *simFile) check() error {
	st, err := f.c.storage()
	if err != nil {
		return err
	}
	if st.files[f.name] != f.mem {
		return fmt.Errorf("%w: %q", process.ErrFileNotFound, f.name)
	}
	return nil
}

func (f *simFile) Read(b []byte, offset int64) (int, error) {
	if len(b) > process.MaxBufferSize {
		return 0, process.ErrBufferSizeExceed
	}
	if err := f.check(); err != nil {
		return 0, err
	}
	n, err := f.mem.Read(b, offset)
	if err != nil {
		return 0, err
	}
	f.wait(n)
	return n, nil
}

func (f *simFile) Append(b []byte) (int, error) {
	if err := f.check(); err != nil {
		return 0, err
	}
	n, err := f.mem.Write(b)
	if errors.Is(err, fio.ErrNoSpace) {
		return 0, process.ErrStorageFull
	}
	if err != nil {
		return 0, err
	}
	f.wait(n)
	return n, nil
}

// wait blocks the calling activity for the time the storage spends on n bytes.
func (f *simFile) wait(n int) {
	s := f.c.s
	if s.storageBandwidth <= 0 || n == 0 {
		return
	}
	d := float64(n) / s.storageBandwidth
	t := s.currentTask()
	t.block(func(wake func(v any)) {
		s.schedule(d, func() { wake(nil) })
	})
}
