package real

import (
	"dsbuild/process"
	"errors"
	"testing"

	"github.com/go-playground/assert/v2"
	"github.com/stretchr/testify/require"
)

func TestFileManager(t *testing.T) {
	fm, err := NewFileManager(t.TempDir())
	require.NoError(t, err)
	defer fm.Close()

	_, err = fm.Open("log")
	assert.Equal(t, errors.Is(err, process.ErrFileNotFound), true)
	_, err = fm.Create("../log")
	assert.Equal(t, errors.Is(err, process.ErrBadFileName), true)

	f, err := fm.Create("log")
	require.NoError(t, err)
	n, err := f.Append([]byte("hello "))
	require.NoError(t, err)
	assert.Equal(t, n, 6)
	_, err = f.Append([]byte("world"))
	require.NoError(t, err)

	_, err = fm.Create("log")
	assert.Equal(t, errors.Is(err, process.ErrFileExists), true)
	ok, err := fm.Exists("log")
	require.NoError(t, err)
	assert.Equal(t, ok, true)

	g, err := fm.Open("log")
	require.NoError(t, err)
	buf := make([]byte, 5)
	n, err = g.Read(buf, 6)
	require.NoError(t, err)
	assert.Equal(t, string(buf[:n]), "world")
	n, err = g.Read(buf, 11)
	require.NoError(t, err)
	assert.Equal(t, n, 0)
	_, err = g.Read(make([]byte, process.MaxBufferSize+1), 0)
	assert.Equal(t, err, process.ErrBufferSizeExceed)

	require.NoError(t, fm.Delete("log"))
	ok, err = fm.Exists("log")
	require.NoError(t, err)
	assert.Equal(t, ok, false)
	assert.Equal(t, errors.Is(fm.Delete("log"), process.ErrFileNotFound), true)
}

func TestFilesSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	fm, err := NewFileManager(dir)
	require.NoError(t, err)
	f, err := fm.Create("state")
	require.NoError(t, err)
	_, err = f.Append([]byte("term=3"))
	require.NoError(t, err)
	require.NoError(t, fm.Close())

	fm, err = NewFileManager(dir)
	require.NoError(t, err)
	defer fm.Close()
	f, err = fm.Open("state")
	require.NoError(t, err)
	buf := make([]byte, 16)
	n, err := f.Read(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, string(buf[:n]), "term=3")
}
