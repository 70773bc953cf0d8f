package tablet

import (
	"sync"

	"github.com/google/btree"
	"github.com/pingcap/errors"
)

const partitionTreeDegree = 64

var _ btree.Item = &partitionItem{}

// partitionItem orders tablets by partition, then by tablet id.
type partitionItem struct {
	partitionID uint64
	tabletID    uint64
	tablet      *Tablet
}

func (p *partitionItem) Less(other btree.Item) bool {
	o := other.(*partitionItem)
	if p.partitionID != o.partitionID {
		return p.partitionID < o.partitionID
	}
	return p.tabletID < o.tabletID
}

// Manager holds the tablets stored on this node. It is populated by the metadata layer, which creates and drops
// tablets; transactions only look tablets up.
type Manager struct {
	mu         sync.RWMutex
	tablets    map[uint64]*Tablet
	partitions *btree.BTree
}

func NewManager() *Manager {
	return &Manager{
		tablets:    make(map[uint64]*Tablet),
		partitions: btree.New(partitionTreeDegree),
	}
}

// AddTablet registers t. It fails if a tablet with the same id is already present.
func (m *Manager) AddTablet(t *Tablet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tablets[t.ID()]; ok {
		return errors.WithStack(&ErrTabletExists{TabletID: t.ID()})
	}
	m.tablets[t.ID()] = t
	m.partitions.ReplaceOrInsert(&partitionItem{partitionID: t.PartitionID(), tabletID: t.ID(), tablet: t})
	return nil
}

// DropTablet removes the tablet with id and reports whether it was present.
func (m *Manager) DropTablet(id uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tablets[id]
	if !ok {
		return false
	}
	delete(m.tablets, id)
	m.partitions.Delete(&partitionItem{partitionID: t.PartitionID(), tabletID: id})
	return true
}

// GetTablet returns the tablet with id, or nil if this node doesn't store it.
func (m *Manager) GetTablet(id uint64) *Tablet {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tablets[id]
}

// GetTablets returns the local tablets of a partition ordered by tablet id.
func (m *Manager) GetTablets(partitionID uint64) []*Tablet {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Tablet
	m.partitions.AscendGreaterOrEqual(&partitionItem{partitionID: partitionID}, func(i btree.Item) bool {
		item := i.(*partitionItem)
		if item.partitionID != partitionID {
			return false
		}
		result = append(result, item.tablet)
		return true
	})
	return result
}

// AllTablets returns every tablet, ordered by partition then tablet id.
func (m *Manager) AllTablets() []*Tablet {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Tablet, 0, len(m.tablets))
	m.partitions.Ascend(func(i btree.Item) bool {
		result = append(result, i.(*partitionItem).tablet)
		return true
	})
	return result
}

func (m *Manager) TabletCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tablets)
}
