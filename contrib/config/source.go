package config

// KeyValue is one loaded config document.
type KeyValue struct {
	Key    string
	Value  []byte
	Format string
}

// Source is a config source.
type Source interface {
	Load() ([]*KeyValue, error)
	Watch() (Watcher, error)
}

// Watcher reports source changes.
type Watcher interface {
	// Next blocks until the source changed and returns its new documents.
	Next() ([]*KeyValue, error)
	Stop() error
}
