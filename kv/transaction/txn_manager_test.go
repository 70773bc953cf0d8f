package transaction

import (
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/pingcap-incubator/tinyolap/kv/tablet"
	"github.com/pingcap/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	partition1 uint64 = 1
	partition2 uint64 = 2
)

// newTestManager returns a txn manager over tablets 5 and 6 in partition 1 and tablet 7 in partition 2, all at
// version 2.
func newTestManager(t *testing.T) (*TxnManager, *tablet.Manager) {
	tablets := tablet.NewManager()
	require.Nil(t, tablets.AddTablet(tablet.NewTablet(5, partition1, 2)))
	require.Nil(t, tablets.AddTablet(tablet.NewTablet(6, partition1, 2)))
	require.Nil(t, tablets.AddTablet(tablet.NewTablet(7, partition2, 2)))
	return NewTxnManager(tablets), tablets
}

func stageR1R2(t *testing.T, m *TxnManager) {
	require.Nil(t, m.Stage(100, partition1, 5, tablet.NewRowset(1, 100, []byte("R1"))))
	require.Nil(t, m.Stage(100, partition1, 6, tablet.NewRowset(2, 100, []byte("R2"))))
}

func TestStageDuplicate(t *testing.T) {
	m, _ := newTestManager(t)
	first := tablet.NewRowset(1, 100, []byte("R1"))
	require.Nil(t, m.Stage(100, partition1, 5, first))

	err := m.Stage(100, partition1, 5, tablet.NewRowset(2, 100, []byte("other")))
	require.NotNil(t, err)
	staged, ok := errors.Cause(err).(*ErrAlreadyStaged)
	require.True(t, ok)
	assert.Equal(t, uint64(100), staged.TxnID)
	assert.Equal(t, uint64(5), staged.TabletID)

	// The first rowset is untouched.
	assert.Equal(t, []StagedTablet{{TabletID: 5, PartitionID: partition1, RowsetID: 1}}, m.StagedTablets(100))

	// The same tablet under a new transaction is fine.
	require.Nil(t, m.Stage(101, partition1, 5, tablet.NewRowset(3, 101, []byte("R3"))))
	assert.Equal(t, 2, m.TxnCount())
}

func TestStageNilRowset(t *testing.T) {
	m, _ := newTestManager(t)
	assert.NotNil(t, m.Stage(100, partition1, 5, nil))
	assert.Empty(t, m.StagedTablets(100))
	assert.Equal(t, 0, m.TxnCount())
}

func TestPublish(t *testing.T) {
	m, tablets := newTestManager(t)
	stageR1R2(t, m)

	result := m.Publish(100, []PartitionVersion{{PartitionID: partition1, Version: 3}})
	assert.Equal(t, []TabletVersion{{5, 3}, {6, 3}}, result.TabletVersions)
	assert.Empty(t, result.ErrorTabletIDs)
	assert.True(t, result.Status.OK())
	assert.Nil(t, result.Err())

	rowsets, err := tablets.GetTablet(5).VisibleRowsets(3)
	require.Nil(t, err)
	require.Len(t, rowsets, 1)
	assert.Equal(t, []byte("R1"), rowsets[0].Rowset.Data)
}

func TestPublishTabletRemoved(t *testing.T) {
	m, tablets := newTestManager(t)
	stageR1R2(t, m)
	require.True(t, tablets.DropTablet(6))

	result := m.Publish(100, []PartitionVersion{{PartitionID: partition1, Version: 3}})
	assert.Equal(t, []uint64{6}, result.ErrorTabletIDs)
	assert.Equal(t, []TabletVersion{{5, 3}}, result.TabletVersions)
	assert.Equal(t, StatusFailed, result.Status.Code)
	assert.Contains(t, result.Status.Message, "tablet:6")
	_, ok := result.Err().(*ErrTabletNotFound)
	assert.True(t, ok)
}

func TestPublishRetry(t *testing.T) {
	m, _ := newTestManager(t)
	stageR1R2(t, m)

	partitions := []PartitionVersion{{PartitionID: partition1, Version: 3}}
	first := m.Publish(100, partitions)
	second := m.Publish(100, partitions)
	assert.True(t, first.Status.OK())
	assert.True(t, second.Status.OK())
	assert.Equal(t, first.TabletVersions, second.TabletVersions)
	assert.Empty(t, second.ErrorTabletIDs)
}

func TestPublishUnknownTxn(t *testing.T) {
	m, tablets := newTestManager(t)
	stageR1R2(t, m)
	require.True(t, m.Publish(100, []PartitionVersion{{PartitionID: partition1, Version: 3}}).Status.OK())

	result := m.Publish(200, []PartitionVersion{
		{PartitionID: partition1, Version: 4},
		{PartitionID: partition2, Version: 4},
	})
	assert.Equal(t, []TabletVersion{{5, 3}, {6, 3}, {7, 2}}, result.TabletVersions)
	assert.Empty(t, result.ErrorTabletIDs)
	assert.True(t, result.Status.OK())

	// Nothing was committed.
	assert.Equal(t, uint64(3), tablets.GetTablet(5).MaxContinuousVersion())
	assert.Empty(t, tablets.GetTablet(5).PendingVersions())
	assert.Equal(t, uint64(2), tablets.GetTablet(7).MaxContinuousVersion())
}

func TestPublishUnknownTxnLargestPartition(t *testing.T) {
	m, tablets := newTestManager(t)
	require.Nil(t, tablets.AddTablet(tablet.NewTablet(8, math.MaxUint64, 2)))

	result := m.Publish(999, []PartitionVersion{{PartitionID: math.MaxUint64, Version: 3}})
	require.Len(t, result.TabletVersions, 1)
	assert.Equal(t, TabletVersion{8, 2}, result.TabletVersions[0])
	assert.True(t, result.Status.OK())
}

func TestPublishAfterRemoveTxn(t *testing.T) {
	m, _ := newTestManager(t)
	stageR1R2(t, m)
	partitions := []PartitionVersion{{PartitionID: partition1, Version: 3}}
	first := m.Publish(100, partitions)

	assert.Equal(t, 2, m.RemoveTxn(100))
	assert.Equal(t, 0, m.RemoveTxn(100))
	assert.Equal(t, 0, m.TxnCount())

	// The coordinator retrying after cleanup sees the same versions.
	second := m.Publish(100, partitions)
	assert.True(t, second.Status.OK())
	assert.Equal(t, first.TabletVersions, second.TabletVersions)
}

// A transaction that exists but staged nothing for a requested partition contributes nothing for that partition,
// it is neither an error nor reported with the tablets' current versions.
func TestPublishPartitionNotStaged(t *testing.T) {
	m, tablets := newTestManager(t)
	stageR1R2(t, m)

	result := m.Publish(100, []PartitionVersion{
		{PartitionID: partition2, Version: 3},
		{PartitionID: partition1, Version: 3},
	})
	assert.Equal(t, []TabletVersion{{5, 3}, {6, 3}}, result.TabletVersions)
	assert.Empty(t, result.ErrorTabletIDs)
	assert.True(t, result.Status.OK())
	assert.Equal(t, uint64(2), tablets.GetTablet(7).MaxContinuousVersion())
}

func TestPublishVersionConflict(t *testing.T) {
	m, tablets := newTestManager(t)
	// Another transaction already took version 3 on tablet 6.
	require.Nil(t, tablets.GetTablet(6).CommitRowset(tablet.NewRowset(9, 99, []byte("R9")), 3))
	stageR1R2(t, m)

	result := m.Publish(100, []PartitionVersion{{PartitionID: partition1, Version: 3}})
	assert.Equal(t, []uint64{6}, result.ErrorTabletIDs)
	// The failed tablet still reports its version.
	assert.Equal(t, []TabletVersion{{5, 3}, {6, 3}}, result.TabletVersions)
	assert.Equal(t, StatusFailed, result.Status.Code)
	_, ok := result.Err().(*tablet.ErrVersionConflict)
	assert.True(t, ok)
}

func TestPublishFirstErrorWins(t *testing.T) {
	m, tablets := newTestManager(t)
	stageR1R2(t, m)
	require.Nil(t, m.Stage(100, partition2, 7, tablet.NewRowset(3, 100, []byte("R3"))))
	require.Nil(t, tablets.GetTablet(7).CommitRowset(tablet.NewRowset(9, 99, []byte("R9")), 3))
	require.True(t, tablets.DropTablet(5))

	result := m.Publish(100, []PartitionVersion{
		{PartitionID: partition1, Version: 3},
		{PartitionID: partition2, Version: 3},
	})
	assert.Equal(t, []uint64{5, 7}, result.ErrorTabletIDs)
	assert.Equal(t, []TabletVersion{{6, 3}, {7, 3}}, result.TabletVersions)
	assert.Contains(t, result.Status.Message, "tablet:5 not found")
}

func TestPublishOutOfOrder(t *testing.T) {
	m, tablets := newTestManager(t)
	require.Nil(t, m.Stage(100, partition1, 5, tablet.NewRowset(1, 100, []byte("R1"))))
	require.Nil(t, m.Stage(101, partition1, 5, tablet.NewRowset(2, 101, []byte("R2"))))

	// Version 4 arrives first; the tablet stays at 2 until version 3 fills the gap.
	result := m.Publish(101, []PartitionVersion{{PartitionID: partition1, Version: 4}})
	assert.True(t, result.Status.OK())
	assert.Equal(t, []TabletVersion{{5, 2}}, result.TabletVersions)
	assert.Equal(t, []uint64{4}, tablets.GetTablet(5).PendingVersions())

	result = m.Publish(100, []PartitionVersion{{PartitionID: partition1, Version: 3}})
	assert.True(t, result.Status.OK())
	assert.Equal(t, []TabletVersion{{5, 4}}, result.TabletVersions)
}

func TestOnPublished(t *testing.T) {
	m, tablets := newTestManager(t)
	stageR1R2(t, m)
	require.True(t, tablets.DropTablet(6))

	var calls [][]uint64
	m.OnPublished = func(txnID uint64, tabletIDs []uint64) {
		assert.Equal(t, uint64(100), txnID)
		calls = append(calls, tabletIDs)
	}
	m.Publish(100, []PartitionVersion{{PartitionID: partition1, Version: 3}})
	m.Publish(200, []PartitionVersion{{PartitionID: partition1, Version: 3}})
	assert.Equal(t, [][]uint64{{5}}, calls)
}

func TestConcurrentStageAndPublish(t *testing.T) {
	m, tablets := newTestManager(t)
	const txns = 64

	var wg sync.WaitGroup
	for i := 0; i < txns; i++ {
		wg.Add(1)
		go func(txnID uint64) {
			defer wg.Done()
			assert.Nil(t, m.Stage(txnID, partition1, 5, tablet.NewRowset(txnID, txnID, []byte{byte(txnID)})))
			assert.Nil(t, m.Stage(txnID, partition1, 6, tablet.NewRowset(txnID+txns, txnID, []byte{byte(txnID)})))
		}(uint64(i))
	}
	wg.Wait()

	// Publish in random order; version 3+i belongs to txn i.
	order := rand.Perm(txns)
	for _, i := range order {
		wg.Add(1)
		go func(txnID uint64) {
			defer wg.Done()
			result := m.Publish(txnID, []PartitionVersion{{PartitionID: partition1, Version: 3 + txnID}})
			assert.True(t, result.Status.OK())
		}(uint64(i))
	}
	wg.Wait()

	for _, id := range []uint64{5, 6} {
		assert.Equal(t, uint64(2+txns), tablets.GetTablet(id).MaxContinuousVersion())
		assert.Empty(t, tablets.GetTablet(id).PendingVersions())
	}
}
