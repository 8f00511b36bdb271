package index

import (
	"fmt"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestSimMap(t *testing.T) {
	b := NewSimMap[int]()
	for i := 0; i < 30; i++ {
		b.Put(fmt.Sprintf("%d", i), i)
	}
	assert.Equal(t, b.Size(), 30)

	keys := []string{"1", "2", "15", "18"}
	for _, k := range keys {
		v, ok := b.Get(k)
		assert.Equal(t, ok, true)
		assert.Equal(t, fmt.Sprintf("%d", v), k)
	}
	for _, k := range keys {
		_, ok := b.Delete(k)
		assert.Equal(t, ok, true)
	}
	for _, k := range keys {
		_, ok := b.Get(k)
		assert.Equal(t, ok, false)
	}
	_, ok := b.Delete("1")
	assert.Equal(t, ok, false)
	assert.Equal(t, b.Size(), 26)

	prev, ok := b.Put("0", 100)
	assert.Equal(t, ok, true)
	assert.Equal(t, prev, 0)
}

func TestScanSorted(t *testing.T) {
	b := NewSimMap[string]()
	b.Put("b", "")
	b.Put("c", "")
	b.Put("a", "")
	assert.Equal(t, b.Scan(), []string{"a", "b", "c"})
}

func BenchmarkMapInsert(b *testing.B) {
	m := NewSimMap[int]()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		m.Put(fmt.Sprintf("%d", i), i)
	}
}
