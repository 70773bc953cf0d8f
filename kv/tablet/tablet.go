package tablet

import (
	"fmt"
	"sync"

	"github.com/google/btree"
	"go.uber.org/atomic"
)

const versionTreeDegree = 32

var _ btree.Item = &versionItem{}

type versionItem struct {
	version uint64
	rowset  *Rowset
}

func (v *versionItem) Less(other btree.Item) bool {
	return v.version < other.(*versionItem).version
}

// Tablet is the smallest replicated unit of storage on a node. Its data is an append-only history of rowsets, one per
// version. Versions may be committed out of order, but readers only ever see the versions up to the max continuous
// version (the frontier): every version in (base, frontier] holds a rowset.
//
// Versions up to and including the base version belong to the tablet's initial state and can't be committed to.
type Tablet struct {
	id          uint64
	partitionID uint64
	baseVersion uint64

	mu       sync.RWMutex
	versions *btree.BTree
	// frontier is only written with mu held, so it can be read without the lock.
	frontier *atomic.Uint64
}

func NewTablet(id, partitionID, baseVersion uint64) *Tablet {
	return &Tablet{
		id:          id,
		partitionID: partitionID,
		baseVersion: baseVersion,
		versions:    btree.New(versionTreeDegree),
		frontier:    atomic.NewUint64(baseVersion),
	}
}

func (t *Tablet) ID() uint64 {
	return t.id
}

func (t *Tablet) PartitionID() uint64 {
	return t.partitionID
}

func (t *Tablet) BaseVersion() uint64 {
	return t.baseVersion
}

// MaxContinuousVersion returns the highest version V such that every version in (base, V] is committed.
func (t *Tablet) MaxContinuousVersion() uint64 {
	return t.frontier.Load()
}

// CommitRowset commits rs at version. Committing the same rowset at the same version again succeeds without changing
// anything, so publish retries are safe. A version which already holds a different rowset, or which is not above the
// base version, yields an *ErrVersionConflict.
func (t *Tablet) CommitRowset(rs *Rowset, version uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if version <= t.baseVersion {
		return &ErrVersionConflict{
			TabletID: t.id,
			Version:  version,
			Reason:   fmt.Sprintf("version is not above base version %d", t.baseVersion),
		}
	}
	if existing := t.versions.Get(&versionItem{version: version}); existing != nil {
		committed := existing.(*versionItem).rowset
		if committed.Equal(rs) {
			return nil
		}
		return &ErrVersionConflict{
			TabletID: t.id,
			Version:  version,
			Reason:   fmt.Sprintf("version already holds %v, got %v", committed, rs),
		}
	}

	t.versions.ReplaceOrInsert(&versionItem{version: version, rowset: rs})
	t.advanceFrontier()
	return nil
}

// advanceFrontier moves the frontier past every consecutive committed version. It only looks at versions above the
// current frontier, so each version is passed over once in the tablet's lifetime.
func (t *Tablet) advanceFrontier() {
	frontier := t.frontier.Load()
	for t.versions.Has(&versionItem{version: frontier + 1}) {
		frontier++
	}
	t.frontier.Store(frontier)
}

// PendingVersions returns the committed versions above the frontier, i.e. versions waiting for a gap to be filled.
func (t *Tablet) PendingVersions() []uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var pending []uint64
	frontier := t.frontier.Load()
	t.versions.AscendGreaterOrEqual(&versionItem{version: frontier}, func(i btree.Item) bool {
		if v := i.(*versionItem).version; v > frontier {
			pending = append(pending, v)
		}
		return true
	})
	return pending
}

// VisibleRowsets returns the rowsets a reader at version sees, in version order. Reading above the frontier is
// refused since some version below it is still missing.
func (t *Tablet) VisibleRowsets(version uint64) ([]VersionedRowset, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	frontier := t.frontier.Load()
	if version > frontier {
		return nil, &ErrVersionNotVisible{TabletID: t.id, Version: version, Visible: frontier}
	}
	var result []VersionedRowset
	t.versions.Ascend(func(i btree.Item) bool {
		item := i.(*versionItem)
		if item.version > version {
			return false
		}
		result = append(result, VersionedRowset{Version: item.version, Rowset: item.rowset})
		return true
	})
	return result, nil
}

// Rowsets returns every committed rowset, including the ones above the frontier, in version order.
func (t *Tablet) Rowsets() []VersionedRowset {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]VersionedRowset, 0, t.versions.Len())
	t.versions.Ascend(func(i btree.Item) bool {
		item := i.(*versionItem)
		result = append(result, VersionedRowset{Version: item.version, Rowset: item.rowset})
		return true
	})
	return result
}

func (t *Tablet) String() string {
	return fmt.Sprintf("tablet{id: %d, partition: %d, base: %d, version: %d}",
		t.id, t.partitionID, t.baseVersion, t.MaxContinuousVersion())
}
