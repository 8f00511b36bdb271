package index

// Indexer maps string keys to values.
type Indexer[V any] interface {
	Put(key string, value V) (V, bool)
	Get(key string) (V, bool)
	Delete(key string) (V, bool)
	// Scan returns the keys in ascending order.
	Scan() []string
	Size() int
}
