package meta

import (
	"os"

	"github.com/Connor1996/badger"
	"github.com/pingcap/errors"
)

// BadgerEngine is an Engine stored in a badger database on local disk.
type BadgerEngine struct {
	db   *badger.DB
	path string
}

// OpenBadgerEngine opens, creating it if needed, the badger database in dir.
func OpenBadgerEngine(dir string) (*BadgerEngine, error) {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, errors.Trace(err)
	}
	opts := badger.DefaultOptions
	opts.Dir = dir
	opts.ValueDir = dir
	opts.SyncWrites = true
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Annotatef(err, "open meta engine at %s", dir)
	}
	return &BadgerEngine{db: db, path: dir}, nil
}

func (e *BadgerEngine) Write(batch []Modify) error {
	if len(batch) == 0 {
		return nil
	}
	err := e.db.Update(func(txn *badger.Txn) error {
		for _, m := range batch {
			var err error
			switch data := m.Data.(type) {
			case Put:
				err = txn.Set(data.Key, data.Value)
			case Delete:
				err = txn.Delete(data.Key)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	return errors.Trace(err)
}

func (e *BadgerEngine) Scan(prefix []byte, fn func(key, value []byte) bool) error {
	err := e.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if !fn(item.KeyCopy(nil), value) {
				return nil
			}
		}
		return nil
	})
	return errors.Trace(err)
}

func (e *BadgerEngine) Path() string {
	return e.path
}

func (e *BadgerEngine) Close() error {
	return errors.Trace(e.db.Close())
}
