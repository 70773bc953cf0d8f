package transaction

import "fmt"

// ErrAlreadyStaged is returned by Stage when the transaction already holds a rowset for the tablet.
type ErrAlreadyStaged struct {
	TxnID    uint64
	TabletID uint64
}

func (e *ErrAlreadyStaged) Error() string {
	return fmt.Sprintf("txn:%d tablet:%d already exists", e.TxnID, e.TabletID)
}

// ErrTabletNotFound is recorded in a publish result when a staged tablet is no longer stored on this node.
type ErrTabletNotFound struct {
	TxnID       uint64
	PartitionID uint64
	TabletID    uint64
}

func (e *ErrTabletNotFound) Error() string {
	return fmt.Sprintf("publish version failed txn:%d partition:%d tablet:%d not found", e.TxnID, e.PartitionID, e.TabletID)
}
