package tablet

import (
	"bytes"
	"fmt"

	farm "github.com/dgryski/go-farm"
)

// Rowset is an immutable batch of rows written by one load transaction into one tablet. The payload is produced and
// encoded upstream; this package only stores it and compares it by identity.
type Rowset struct {
	ID    uint64
	TxnID uint64
	Data  []byte

	fingerprint uint64
}

func NewRowset(id, txnID uint64, data []byte) *Rowset {
	return &Rowset{
		ID:          id,
		TxnID:       txnID,
		Data:        data,
		fingerprint: farm.Fingerprint64(data),
	}
}

// Fingerprint returns the farm fingerprint of the payload.
func (rs *Rowset) Fingerprint() uint64 {
	return rs.fingerprint
}

// Equal reports whether other carries the same rowset: same id, same transaction and the same payload.
func (rs *Rowset) Equal(other *Rowset) bool {
	if rs == other {
		return true
	}
	if rs == nil || other == nil {
		return false
	}
	if rs.ID != other.ID || rs.TxnID != other.TxnID || rs.fingerprint != other.fingerprint {
		return false
	}
	return bytes.Equal(rs.Data, other.Data)
}

func (rs *Rowset) String() string {
	return fmt.Sprintf("rowset{id: %d, txn: %d, size: %d}", rs.ID, rs.TxnID, len(rs.Data))
}

// VersionedRowset is a rowset together with the version it was committed at.
type VersionedRowset struct {
	Version uint64
	Rowset  *Rowset
}
