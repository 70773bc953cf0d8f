package meta

// Modify is a single change to an Engine, either a Put or a Delete.
type Modify struct {
	Data interface{}
}

type Put struct {
	Key   []byte
	Value []byte
}

type Delete struct {
	Key []byte
}

func (m *Modify) Key() []byte {
	switch m.Data.(type) {
	case Put:
		return m.Data.(Put).Key
	case Delete:
		return m.Data.(Delete).Key
	}
	return nil
}

// Engine is the ordered key/value store tablet metadata is kept in.
type Engine interface {
	// Write applies batch atomically.
	Write(batch []Modify) error
	// Scan calls fn for every key with prefix, in key order, until fn returns false.
	Scan(prefix []byte, fn func(key, value []byte) bool) error
	Close() error
}
