package transaction

// The transaction package implements the replica side of load transactions. A load is split by the coordinator into
// one rowset per tablet; the local ingestion pipeline hands every rowset to the TxnManager with Stage as soon as it is
// written. Staged rowsets are invisible to readers.
//
// Once the coordinator believes enough replicas have staged their rowsets it picks a version for every partition
// touched by the transaction and asks each replica to Publish. Publishing commits each staged rowset into its tablet's
// version history at the partition's version (see tablet.Tablet). A tablet only exposes versions up to its max
// continuous version, so a rowset published at version v becomes readable once v-1 is readable too.
//
// Publish reports per tablet rather than failing the whole call: the coordinator decides about quorum, retries and
// aborts, and it needs to know exactly which tablets are behind. Publish may be called more than once for the same
// transaction, also after the staged rowsets were cleaned up; both cases report the tablets' current versions without
// regressing anything.
//
// Staged writes are kept in a single index ordered by (transaction id, tablet id), with the partition stored alongside
// the rowset. The manager is guarded by one mutex; no I/O happens while it is held, rowsets are already materialized
// when they are staged.
