package tinyolap

/*
TinyOLAP is the storage node of a column-oriented analytical database, reduced to the parts that make a load
transaction visible on a replica. It is intended for teaching and experimentation.

A load writes rowsets to the tablets of one or more partitions. The coordinator first stages each rowset on the replica
under its transaction id, then publishes the transaction with a version per partition. Publishing commits the staged
rowsets into the tablets' version histories. A tablet only serves versions up to its maximum continuous version, the
highest version reachable from its base without a gap.

Building TinyOLAP produces two executables: tinyolap-server, one storage node taking loads and serving its status over
HTTP, and tinyolap-ctl, which inspects the tablet checkpoints of a stopped node.

The `tinyolap` module is organized into the following packages:

* `kv/tablet`: tablets, their rowsets and version histories, and the per-node tablet manager.
* `kv/transaction`: the transaction manager which stages and publishes load transactions.
* `kv/meta`: checkpoints of tablet histories in badger, and restoring them on start.
* `kv/server`: the HTTP API of a node.
* `kv/config`: configuration of tinyolap-server.
*/
