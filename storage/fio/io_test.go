package fio

import (
	"path/filepath"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestFileIO(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "test.txt")
	manager, err := NewManager(filename, FIO)
	assert.Equal(t, err, nil)
	defer manager.Close()

	write, err := manager.Write([]byte("hello world"))
	assert.Equal(t, err, nil)
	assert.Equal(t, write, 11)
	err = manager.Sync()
	assert.Equal(t, err, nil)

	buf := make([]byte, 5)
	n, err := manager.Read(buf, 6)
	assert.Equal(t, err, nil)
	assert.Equal(t, string(buf[:n]), "world")

	n, err = manager.Read(buf, 100)
	assert.Equal(t, err, nil)
	assert.Equal(t, n, 0)

	size, err := manager.Size()
	assert.Equal(t, err, nil)
	assert.Equal(t, size, int64(11))
}

func TestFileIOReopenAppends(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "log")
	first, err := NewFileIOManager(filename)
	assert.Equal(t, err, nil)
	_, _ = first.Write([]byte("abc"))
	assert.Equal(t, first.Close(), nil)

	second, err := NewFileIOManager(filename)
	assert.Equal(t, err, nil)
	defer second.Close()
	_, _ = second.Write([]byte("def"))
	buf := make([]byte, 10)
	n, err := second.Read(buf, 0)
	assert.Equal(t, err, nil)
	assert.Equal(t, string(buf[:n]), "abcdef")

	_, err = first.Write([]byte("x"))
	assert.Equal(t, err, ErrClosed)
}

func TestMemIO(t *testing.T) {
	manager, err := NewManager("mem", Memory)
	assert.Equal(t, err, nil)
	write, err := manager.Write([]byte("hello world"))
	assert.Equal(t, err, nil)
	assert.Equal(t, write, 11)

	buf := make([]byte, 64)
	n, err := manager.Read(buf, 0)
	assert.Equal(t, err, nil)
	assert.Equal(t, string(buf[:n]), "hello world")
}

func TestMemIOSpace(t *testing.T) {
	space := NewSpace(8)
	a := NewMemIO("a", space)
	b := NewMemIO("b", space)

	n, err := a.Write([]byte("12345"))
	assert.Equal(t, err, nil)
	assert.Equal(t, n, 5)

	n, err = b.Write([]byte("6789"))
	assert.Equal(t, err, nil)
	assert.Equal(t, n, 3)

	_, err = b.Write([]byte("0"))
	assert.Equal(t, err, ErrNoSpace)

	a.Release()
	assert.Equal(t, space.Used(), int64(3))
	n, err = b.Write([]byte("0"))
	assert.Equal(t, err, nil)
	assert.Equal(t, n, 1)
}

func BenchmarkFileIO_Write(b *testing.B) {
	manager, err := NewManager(filepath.Join(b.TempDir(), "fio_write_test.txt"), FIO)
	assert.Equal(b, err, nil)
	defer manager.Close()
	for i := 0; i < b.N; i++ {
		_, _ = manager.Write([]byte("hello world\n"))
	}
}

func BenchmarkMemIO_Write(b *testing.B) {
	manager, err := NewManager("mio_write_test.txt", Memory)
	assert.Equal(b, err, nil)
	defer manager.Close()
	for i := 0; i < b.N; i++ {
		_, _ = manager.Write([]byte("hello world\n"))
	}
}
