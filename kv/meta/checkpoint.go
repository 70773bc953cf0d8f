package meta

import (
	"sync"

	"github.com/pingcap-incubator/tinyolap/kv/tablet"
	"github.com/pingcap-incubator/tinyolap/kv/util/worker"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// TabletSource is where the checkpointer reads tablets from, usually a *tablet.Manager.
type TabletSource interface {
	GetTablet(tabletID uint64) *tablet.Tablet
	AllTablets() []*tablet.Tablet
}

type checkpointTask struct {
	txnID     uint64
	tabletIDs []uint64
}

type checkpointAllTask struct{}

type flushTask struct {
	done chan struct{}
}

const checkpointQueueCapacity = 128

// Checkpointer saves tablet histories to a Store in the background. Publishing only enqueues the ids of the tablets
// it changed; reading the tablets and writing the store happens on the checkpointer's worker.
//
// Notify never blocks. When the queue is full the tablet ids are kept in a pending set, and the next NotifyAll, which
// saves every tablet, takes them over.
type Checkpointer struct {
	worker  *worker.Worker
	handler *checkpointHandler

	pendingMu sync.Mutex
	pending   map[uint64]struct{}
}

type checkpointHandler struct {
	store   *Store
	tablets TabletSource

	saved map[uint64]*savedTablet
}

// savedTablet is what the store holds for a tablet id, as written by this checkpointer.
type savedTablet struct {
	tablet   *tablet.Tablet
	meta     TabletMeta
	versions map[uint64]struct{}
}

func NewCheckpointer(store *Store, tablets TabletSource) *Checkpointer {
	return &Checkpointer{
		worker: worker.NewWorker("checkpoint", checkpointQueueCapacity),
		handler: &checkpointHandler{
			store:   store,
			tablets: tablets,
			saved:   make(map[uint64]*savedTablet),
		},
		pending: make(map[uint64]struct{}),
	}
}

func (c *Checkpointer) Start() {
	c.worker.Start(c.handler)
}

// Notify schedules the given tablets to be saved. Its signature matches TxnManager.OnPublished.
func (c *Checkpointer) Notify(txnID uint64, tabletIDs []uint64) {
	if c.worker.TrySend(checkpointTask{txnID: txnID, tabletIDs: tabletIDs}) {
		return
	}
	c.pendingMu.Lock()
	for _, id := range tabletIDs {
		c.pending[id] = struct{}{}
	}
	n := len(c.pending)
	c.pendingMu.Unlock()
	log.Warn("checkpoint queue is full, tablets left for the next full checkpoint",
		zap.Uint64("txn-id", txnID), zap.Int("pending-tablets", n))
}

// PendingCount returns the number of tablets waiting for the next NotifyAll.
func (c *Checkpointer) PendingCount() int {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	return len(c.pending)
}

// NotifyAll schedules every tablet to be saved, and the saved tablets which no longer exist to be deleted. It waits
// for room in the queue.
func (c *Checkpointer) NotifyAll() {
	c.pendingMu.Lock()
	pending := c.pending
	c.pending = make(map[uint64]struct{})
	c.pendingMu.Unlock()

	if !c.worker.Send(checkpointAllTask{}) {
		log.Warn("checkpointer stopped, full checkpoint skipped", zap.Int("pending-tablets", len(pending)))
		return
	}
	if len(pending) > 0 {
		log.Info("pending tablets taken over by full checkpoint", zap.Int("pending-tablets", len(pending)))
	}
}

// Flush blocks until every task scheduled before it is handled, or the checkpointer is stopped.
func (c *Checkpointer) Flush() {
	done := make(chan struct{})
	if !c.worker.Send(flushTask{done: done}) {
		return
	}
	select {
	case <-done:
	case <-c.worker.Done():
	}
}

// Stop handles the queued tasks and stops the worker. Later notifications are dropped.
func (c *Checkpointer) Stop() {
	c.worker.Stop()
	<-c.worker.Done()
}

func (h *checkpointHandler) Handle(t worker.Task) {
	switch task := t.(type) {
	case checkpointTask:
		for _, id := range task.tabletIDs {
			h.checkpoint(id)
		}
	case checkpointAllTask:
		h.checkpointAll()
	case flushTask:
		close(task.done)
	default:
		log.Error("unexpected checkpoint task", zap.Reflect("task", t))
	}
}

func (h *checkpointHandler) checkpoint(tabletID uint64) {
	t := h.tablets.GetTablet(tabletID)
	if t == nil {
		h.deleteTablet(tabletID)
		return
	}
	h.saveTablet(t)
}

func (h *checkpointHandler) checkpointAll() {
	present := make(map[uint64]struct{})
	for _, t := range h.tablets.AllTablets() {
		present[t.ID()] = struct{}{}
		h.saveTablet(t)
	}
	metas, err := h.store.LoadTablets()
	if err != nil {
		log.Error("load saved tablets failed", zap.Error(err))
		return
	}
	for _, meta := range metas {
		if _, ok := present[meta.TabletID]; !ok {
			h.deleteTablet(meta.TabletID)
		}
	}
}

func (h *checkpointHandler) saveTablet(t *tablet.Tablet) {
	meta := TabletMetaOf(t)
	rowsets := t.Rowsets()
	saved := h.saved[t.ID()]
	if saved == nil || saved.tablet != t || saved.meta != meta {
		// The store may hold rowsets of an earlier tablet with this id, from a previous run or from a tablet dropped
		// and created again since the last checkpoint.
		if err := h.store.ReplaceTablet(meta, rowsets); err != nil {
			log.Error("save tablet failed", zap.Uint64("tablet-id", t.ID()), zap.Error(err))
			delete(h.saved, t.ID())
			return
		}
		saved = &savedTablet{tablet: t, meta: meta, versions: make(map[uint64]struct{}, len(rowsets))}
		for _, vr := range rowsets {
			saved.versions[vr.Version] = struct{}{}
		}
		h.saved[t.ID()] = saved
		log.Debug("tablet rewritten", zap.Uint64("tablet-id", t.ID()), zap.Int("rowsets", len(rowsets)))
		return
	}

	var unsaved []tablet.VersionedRowset
	for _, vr := range rowsets {
		if _, ok := saved.versions[vr.Version]; !ok {
			unsaved = append(unsaved, vr)
		}
	}
	if len(unsaved) == 0 {
		return
	}
	if err := h.store.SaveTablet(meta, unsaved); err != nil {
		log.Error("save tablet failed", zap.Uint64("tablet-id", t.ID()), zap.Error(err))
		return
	}
	for _, vr := range unsaved {
		saved.versions[vr.Version] = struct{}{}
	}
	log.Debug("tablet saved", zap.Uint64("tablet-id", t.ID()), zap.Int("rowsets", len(unsaved)))
}

func (h *checkpointHandler) deleteTablet(tabletID uint64) {
	if err := h.store.DeleteTablet(tabletID); err != nil {
		log.Error("delete saved tablet failed", zap.Uint64("tablet-id", tabletID), zap.Error(err))
		return
	}
	delete(h.saved, tabletID)
	log.Info("saved tablet deleted", zap.Uint64("tablet-id", tabletID))
}

// RestoreTablets recreates every saved tablet, with its rowsets committed again, and adds it to tablets.
func RestoreTablets(store *Store, tablets *tablet.Manager) (int, error) {
	metas, err := store.LoadTablets()
	if err != nil {
		return 0, err
	}
	for _, meta := range metas {
		rowsets, err := store.LoadRowsets(meta.TabletID)
		if err != nil {
			return 0, err
		}
		t := tablet.NewTablet(meta.TabletID, meta.PartitionID, meta.BaseVersion)
		for _, vr := range rowsets {
			if err := t.CommitRowset(vr.Rowset, vr.Version); err != nil {
				return 0, err
			}
		}
		if err := tablets.AddTablet(t); err != nil {
			return 0, err
		}
		log.Info("tablet restored", zap.Stringer("tablet", t), zap.Uint64s("pending-versions", t.PendingVersions()))
	}
	return len(metas), nil
}
