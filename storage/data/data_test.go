package data

import (
	"dsbuild/process"
	"dsbuild/storage/fio"
	"fmt"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestRecords(t *testing.T) {
	manager, err := fio.NewManager("test.db", fio.Memory)
	assert.Equal(t, err, nil)
	df, err := OpenManagerFile(manager)
	assert.Equal(t, err, nil)

	records := []*Record{
		{Key: []byte{1, 2, 3, 4}, Value: []byte{4, 5, 6}, Type: RecordNormal},
		{Key: []byte("term"), Value: nil, Type: RecordDeleted},
		{Value: []byte(`{"term":3}`)},
	}
	for _, r := range records {
		assert.Equal(t, df.Write(r), nil)
	}

	r, size, err := df.ReadRecord(0)
	assert.Equal(t, err, nil)
	assert.Equal(t, r.Key, []byte{1, 2, 3, 4})
	assert.Equal(t, r.Value, []byte{4, 5, 6})
	_, expected := EncodeRecord(records[0])
	assert.Equal(t, size, expected)

	got, err := df.ReadAll()
	assert.Equal(t, err, nil)
	assert.Equal(t, len(got), 3)
	assert.Equal(t, got[1].Type, RecordDeleted)
	assert.Equal(t, string(got[2].Value), `{"term":3}`)
	size, _ = manager.Size()
	assert.Equal(t, df.WriteOff, size)
}

func TestTornTail(t *testing.T) {
	space := fio.NewSpace(20)
	manager := fio.NewMemIO("log", space)
	df, err := OpenManagerFile(manager)
	assert.Equal(t, err, nil)

	assert.Equal(t, df.Write(&Record{Value: []byte("0123456789")}), nil)
	assert.Equal(t, df.Write(&Record{Value: []byte("0123456789")}), ErrShortWrite)

	got, err := df.ReadAll()
	assert.Equal(t, err, nil)
	assert.Equal(t, len(got), 1)
	assert.Equal(t, string(got[0].Value), "0123456789")
}

type memFile struct {
	*fio.MemIO
}

func (f memFile) Append(b []byte) (int, error) {
	return f.Write(b)
}

type memFS struct {
	space *fio.Space
	files map[string]*fio.MemIO
}

func (fs *memFS) CreateFile(name string) (process.File, error) {
	if _, ok := fs.files[name]; ok {
		return nil, fmt.Errorf("%w: %q", process.ErrFileExists, name)
	}
	fs.files[name] = fio.NewMemIO(name, fs.space)
	return memFile{fs.files[name]}, nil
}

func (fs *memFS) OpenFile(name string) (process.File, error) {
	m, ok := fs.files[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", process.ErrFileNotFound, name)
	}
	return memFile{m}, nil
}

func (fs *memFS) DeleteFile(name string) error {
	m, ok := fs.files[name]
	if !ok {
		return fmt.Errorf("%w: %q", process.ErrFileNotFound, name)
	}
	m.Release()
	delete(fs.files, name)
	return nil
}

func TestFullStorageThenAppend(t *testing.T) {
	fs := &memFS{space: fio.NewSpace(60), files: make(map[string]*fio.MemIO)}
	other, err := fs.CreateFile("other")
	assert.Equal(t, err, nil)
	n, err := other.Append(make([]byte, 20))
	assert.Equal(t, err, nil)
	assert.Equal(t, n, 20)

	df, records, err := Open(fs, "log")
	assert.Equal(t, err, nil)
	assert.Equal(t, len(records), 0)

	// 17 bytes per record
	assert.Equal(t, df.Write(&Record{Value: []byte("0123456789")}), nil)
	assert.Equal(t, df.Write(&Record{Value: []byte("abcdefghij")}), nil)
	assert.Equal(t, df.Write(&Record{Value: []byte("klmnopqrst")}), ErrShortWrite)
	assert.Equal(t, df.Torn(), true)
	assert.Equal(t, df.Write(&Record{Value: []byte("uvwxyz")}), ErrTornTail)

	assert.Equal(t, fs.DeleteFile("other"), nil)

	df, records, err = Open(fs, "log")
	assert.Equal(t, err, nil)
	assert.Equal(t, len(records), 2)
	assert.Equal(t, df.Torn(), false)
	assert.Equal(t, df.Write(&Record{Value: []byte("uvwxyz")}), nil)

	df, records, err = Open(fs, "log")
	assert.Equal(t, err, nil)
	assert.Equal(t, len(records), 3)
	assert.Equal(t, string(records[0].Value), "0123456789")
	assert.Equal(t, string(records[2].Value), "uvwxyz")
	assert.Equal(t, df.Torn(), false)
}

func TestCorruptedRecord(t *testing.T) {
	manager, _ := fio.NewManager("corrupted", fio.Memory)
	buf, _ := EncodeRecord(&Record{Key: []byte("k"), Value: []byte("v")})
	buf[len(buf)-1] ^= 0xff
	_, _ = manager.Write(buf)

	df, _ := OpenManagerFile(manager)
	_, _, err := df.ReadRecord(0)
	assert.Equal(t, err, ErrInvalidCRC)
}
