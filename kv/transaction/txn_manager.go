package transaction

import (
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/pingcap-incubator/tinyolap/kv/tablet"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// TabletStore resolves tablets stored on this node. It is owned and kept up to date by the metadata layer.
type TabletStore interface {
	GetTablet(tabletID uint64) *tablet.Tablet
	GetTablets(partitionID uint64) []*tablet.Tablet
}

const stagingTreeDegree = 64

var _ btree.Item = &stagedWrite{}

// stagedWrite is a rowset waiting to be published. Staged writes are ordered by transaction, then by tablet.
type stagedWrite struct {
	txnID       uint64
	tabletID    uint64
	partitionID uint64
	rowset      *tablet.Rowset
}

func (w *stagedWrite) Less(other btree.Item) bool {
	o := other.(*stagedWrite)
	if w.txnID != o.txnID {
		return w.txnID < o.txnID
	}
	return w.tabletID < o.tabletID
}

// StagedTablet describes a staged rowset.
type StagedTablet struct {
	TabletID    uint64 `json:"tablet_id"`
	PartitionID uint64 `json:"partition_id"`
	RowsetID    uint64 `json:"rowset_id"`
}

// TxnManager tracks the rowsets staged by in-flight load transactions and publishes them into tablets.
type TxnManager struct {
	tablets TabletStore

	mu     sync.Mutex
	staged *btree.BTree

	// OnPublished, if set, is called after every publish which committed rowsets, with the ids of the tablets whose
	// history changed. It runs outside the manager's lock.
	OnPublished func(txnID uint64, tabletIDs []uint64)
}

func NewTxnManager(tablets TabletStore) *TxnManager {
	return &TxnManager{
		tablets: tablets,
		staged:  btree.New(stagingTreeDegree),
	}
}

// Stage records rs as the rowset written by txnID for tabletID. Each tablet can be staged once per transaction; a
// second Stage fails with *ErrAlreadyStaged and leaves the first rowset in place.
func (m *TxnManager) Stage(txnID, partitionID, tabletID uint64, rs *tablet.Rowset) error {
	if rs == nil {
		stageCounter.WithLabelValues("invalid").Inc()
		return errors.Errorf("txn:%d tablet:%d stage nil rowset", txnID, tabletID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	write := &stagedWrite{txnID: txnID, tabletID: tabletID, partitionID: partitionID, rowset: rs}
	if m.staged.Has(write) {
		stageCounter.WithLabelValues("duplicate").Inc()
		return errors.WithStack(&ErrAlreadyStaged{TxnID: txnID, TabletID: tabletID})
	}
	m.staged.ReplaceOrInsert(write)
	stageCounter.WithLabelValues("ok").Inc()
	stagedRowsetsGauge.Inc()
	return nil
}

// Publish commits the rowsets staged by txnID into their tablets, at the version given for their partition.
//
// Publish never fails as a whole. A tablet that is gone or whose commit conflicts is listed in ErrorTabletIDs and
// the other tablets are still published. If the transaction has nothing staged on this node, the current version of
// every local tablet of the requested partitions is reported and nothing changes.
func (m *TxnManager) Publish(txnID uint64, partitions []PartitionVersion) *PublishResult {
	start := time.Now()
	result := new(PublishResult)
	totalTablets := 0
	var published []uint64

	m.mu.Lock()
	writes := m.txnWrites(txnID)
	for _, pv := range partitions {
		if len(writes) == 0 {
			for _, t := range m.tablets.GetTablets(pv.PartitionID) {
				totalTablets++
				result.addVersion(t.ID(), t.MaxContinuousVersion())
			}
			continue
		}

		partitionWrites := writesOfPartition(writes, pv.PartitionID)
		if len(partitionWrites) == 0 {
			log.Warn("publish version partition not found in txn",
				zap.Uint64("txn-id", txnID), zap.Uint64("partition-id", pv.PartitionID))
			continue
		}
		for _, w := range partitionWrites {
			totalTablets++
			t := m.tablets.GetTablet(w.tabletID)
			if t == nil {
				result.addError(w.tabletID, &ErrTabletNotFound{TxnID: txnID, PartitionID: pv.PartitionID, TabletID: w.tabletID})
				continue
			}
			if err := t.CommitRowset(w.rowset, pv.Version); err != nil {
				result.addError(t.ID(), err)
			} else {
				published = append(published, t.ID())
			}
			result.addVersion(t.ID(), t.MaxContinuousVersion())
		}
	}
	m.mu.Unlock()

	result.finish()
	var errMsg string
	if !result.Status.OK() {
		errMsg = result.Status.Message
	}
	log.Info("publish version",
		zap.Uint64("txn-id", txnID),
		zap.Int("error-tablets", len(result.ErrorTabletIDs)),
		zap.Int("total-tablets", totalTablets),
		zap.String("error", errMsg))

	publishCounter.WithLabelValues(result.Status.Code.String()).Inc()
	publishErrorTabletCounter.Add(float64(len(result.ErrorTabletIDs)))
	publishDuration.Observe(time.Since(start).Seconds())

	if len(published) > 0 && m.OnPublished != nil {
		m.OnPublished(txnID, published)
	}
	return result
}

// StagedTablets lists the rowsets txnID has staged, ordered by tablet id.
func (m *TxnManager) StagedTablets(txnID uint64) []StagedTablet {
	m.mu.Lock()
	defer m.mu.Unlock()

	writes := m.txnWrites(txnID)
	result := make([]StagedTablet, 0, len(writes))
	for _, w := range writes {
		result = append(result, StagedTablet{TabletID: w.tabletID, PartitionID: w.partitionID, RowsetID: w.rowset.ID})
	}
	return result
}

// TxnCount returns the number of transactions with staged rowsets.
func (m *TxnManager) TxnCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	var last *stagedWrite
	m.staged.Ascend(func(i btree.Item) bool {
		w := i.(*stagedWrite)
		if last == nil || last.txnID != w.txnID {
			count++
		}
		last = w
		return true
	})
	return count
}

// RemoveTxn drops the rowsets staged by txnID and returns how many there were. Publish never removes staged rowsets,
// whoever owns the transaction lifecycle calls this once the transaction is finished.
func (m *TxnManager) RemoveTxn(txnID uint64) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	writes := m.txnWrites(txnID)
	for _, w := range writes {
		m.staged.Delete(w)
	}
	stagedRowsetsGauge.Sub(float64(len(writes)))
	if len(writes) > 0 {
		log.Info("remove txn", zap.Uint64("txn-id", txnID), zap.Int("tablets", len(writes)))
	}
	return len(writes)
}

// txnWrites returns the writes staged by txnID ordered by tablet id. m.mu must be held.
func (m *TxnManager) txnWrites(txnID uint64) []*stagedWrite {
	var writes []*stagedWrite
	visit := func(i btree.Item) bool {
		w := i.(*stagedWrite)
		if w.txnID != txnID {
			return false
		}
		writes = append(writes, w)
		return true
	}
	m.staged.AscendGreaterOrEqual(&stagedWrite{txnID: txnID}, visit)
	return writes
}

func writesOfPartition(writes []*stagedWrite, partitionID uint64) []*stagedWrite {
	var result []*stagedWrite
	for _, w := range writes {
		if w.partitionID == partitionID {
			result = append(result, w)
		}
	}
	return result
}
