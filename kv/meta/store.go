package meta

import (
	"github.com/pingcap-incubator/tinyolap/kv/tablet"
	"github.com/pingcap-incubator/tinyolap/kv/util/codec"
	"github.com/pingcap/errors"
)

// Key layout:
//   't' | tablet id             -> partition id | base version
//   'r' | tablet id | version   -> rowset id | txn id | payload
const (
	tabletPrefix byte = 't'
	rowsetPrefix byte = 'r'
)

// TabletMeta is what is needed to recreate an empty tablet.
type TabletMeta struct {
	TabletID    uint64
	PartitionID uint64
	BaseVersion uint64
}

func TabletMetaOf(t *tablet.Tablet) TabletMeta {
	return TabletMeta{TabletID: t.ID(), PartitionID: t.PartitionID(), BaseVersion: t.BaseVersion()}
}

// Store persists tablets and their committed rowsets in an Engine.
type Store struct {
	engine Engine
}

func NewStore(engine Engine) *Store {
	return &Store{engine: engine}
}

// SaveTablet writes the tablet's meta and the given rowsets. Rowsets are immutable once committed, so saving a
// rowset again rewrites the same value.
func (s *Store) SaveTablet(meta TabletMeta, rowsets []tablet.VersionedRowset) error {
	batch := make([]Modify, 0, len(rowsets)+1)
	batch = append(batch, Modify{Data: Put{Key: tabletKey(meta.TabletID), Value: encodeTabletMeta(meta)}})
	for _, vr := range rowsets {
		batch = append(batch, Modify{Data: Put{
			Key:   rowsetKey(meta.TabletID, vr.Version),
			Value: encodeRowset(vr.Rowset),
		}})
	}
	return errors.Trace(s.engine.Write(batch))
}

// ReplaceTablet writes the tablet's meta and rowsets and removes any other rowset saved under the same tablet id, in
// one batch.
func (s *Store) ReplaceTablet(meta TabletMeta, rowsets []tablet.VersionedRowset) error {
	keep := make(map[uint64]struct{}, len(rowsets))
	for _, vr := range rowsets {
		keep[vr.Version] = struct{}{}
	}
	prefix := rowsetTabletPrefix(meta.TabletID)
	var (
		batch  []Modify
		decErr error
	)
	err := s.engine.Scan(prefix, func(key, _ []byte) bool {
		_, version, err := codec.DecodeUint64(key[len(prefix):])
		if err != nil {
			decErr = errors.Annotatef(err, "decode rowset key of tablet %d", meta.TabletID)
			return false
		}
		if _, ok := keep[version]; !ok {
			batch = append(batch, Modify{Data: Delete{Key: append([]byte(nil), key...)}})
		}
		return true
	})
	if err != nil {
		return errors.Trace(err)
	}
	if decErr != nil {
		return decErr
	}
	batch = append(batch, Modify{Data: Put{Key: tabletKey(meta.TabletID), Value: encodeTabletMeta(meta)}})
	for _, vr := range rowsets {
		batch = append(batch, Modify{Data: Put{
			Key:   rowsetKey(meta.TabletID, vr.Version),
			Value: encodeRowset(vr.Rowset),
		}})
	}
	return errors.Trace(s.engine.Write(batch))
}

// DeleteTablet removes the tablet's meta and all of its rowsets.
func (s *Store) DeleteTablet(tabletID uint64) error {
	batch := []Modify{{Data: Delete{Key: tabletKey(tabletID)}}}
	err := s.engine.Scan(rowsetTabletPrefix(tabletID), func(key, _ []byte) bool {
		batch = append(batch, Modify{Data: Delete{Key: key}})
		return true
	})
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(s.engine.Write(batch))
}

// LoadTablets returns the meta of every saved tablet, ordered by tablet id.
func (s *Store) LoadTablets() ([]TabletMeta, error) {
	var (
		metas  []TabletMeta
		decErr error
	)
	err := s.engine.Scan([]byte{tabletPrefix}, func(key, value []byte) bool {
		_, tabletID, err := codec.DecodeUint64(key[1:])
		if err != nil {
			decErr = errors.Annotatef(err, "decode tablet key %x", key)
			return false
		}
		meta, err := decodeTabletMeta(tabletID, value)
		if err != nil {
			decErr = err
			return false
		}
		metas = append(metas, meta)
		return true
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	if decErr != nil {
		return nil, decErr
	}
	return metas, nil
}

// LoadRowsets returns the saved rowsets of a tablet ordered by version.
func (s *Store) LoadRowsets(tabletID uint64) ([]tablet.VersionedRowset, error) {
	var (
		rowsets []tablet.VersionedRowset
		decErr  error
	)
	prefix := rowsetTabletPrefix(tabletID)
	err := s.engine.Scan(prefix, func(key, value []byte) bool {
		_, version, err := codec.DecodeUint64(key[len(prefix):])
		if err != nil {
			decErr = errors.Annotatef(err, "decode rowset key %x", key)
			return false
		}
		rs, err := decodeRowset(value)
		if err != nil {
			decErr = errors.Annotatef(err, "tablet %d version %d", tabletID, version)
			return false
		}
		rowsets = append(rowsets, tablet.VersionedRowset{Version: version, Rowset: rs})
		return true
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	if decErr != nil {
		return nil, decErr
	}
	return rowsets, nil
}

func (s *Store) Close() error {
	return s.engine.Close()
}

func tabletKey(tabletID uint64) []byte {
	return codec.EncodeUint64([]byte{tabletPrefix}, tabletID)
}

func rowsetTabletPrefix(tabletID uint64) []byte {
	return codec.EncodeUint64([]byte{rowsetPrefix}, tabletID)
}

func rowsetKey(tabletID, version uint64) []byte {
	return codec.EncodeUint64(rowsetTabletPrefix(tabletID), version)
}

func encodeTabletMeta(meta TabletMeta) []byte {
	return codec.EncodeUint64(codec.EncodeUint64(make([]byte, 0, 16), meta.PartitionID), meta.BaseVersion)
}

func decodeTabletMeta(tabletID uint64, value []byte) (TabletMeta, error) {
	left, partitionID, err := codec.DecodeUint64(value)
	if err != nil {
		return TabletMeta{}, errors.Annotatef(err, "decode tablet %d meta", tabletID)
	}
	_, baseVersion, err := codec.DecodeUint64(left)
	if err != nil {
		return TabletMeta{}, errors.Annotatef(err, "decode tablet %d meta", tabletID)
	}
	return TabletMeta{TabletID: tabletID, PartitionID: partitionID, BaseVersion: baseVersion}, nil
}

func encodeRowset(rs *tablet.Rowset) []byte {
	b := make([]byte, 0, 16+len(rs.Data)+len(rs.Data)/8+9)
	b = codec.EncodeUint64(b, rs.ID)
	b = codec.EncodeUint64(b, rs.TxnID)
	return codec.EncodeBytes(b, rs.Data)
}

func decodeRowset(value []byte) (*tablet.Rowset, error) {
	left, id, err := codec.DecodeUint64(value)
	if err != nil {
		return nil, err
	}
	left, txnID, err := codec.DecodeUint64(left)
	if err != nil {
		return nil, err
	}
	_, data, err := codec.DecodeBytes(left)
	if err != nil {
		return nil, err
	}
	return tablet.NewRowset(id, txnID, data), nil
}
