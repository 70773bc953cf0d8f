package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/pingcap-incubator/tinyolap/kv/tablet"
	"github.com/pingcap-incubator/tinyolap/kv/transaction"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/unrolled/render"
	"go.uber.org/zap"
)

// Server is the node's HTTP API. Coordinators stage and publish load transactions through it, the metadata layer
// creates and drops tablets, and operators read tablet versions, staged transactions and metrics.
type Server struct {
	tablets   *tablet.Manager
	txns      *transaction.TxnManager
	rd        *render.Render
	startTime time.Time

	// OnTabletsChanged, if set, is called after tablets are created or dropped.
	OnTabletsChanged func(tabletIDs []uint64)
}

func NewServer(tablets *tablet.Manager, txns *transaction.TxnManager) *Server {
	return &Server{
		tablets:   tablets,
		txns:      txns,
		rd:        render.New(render.Options{IndentJSON: true}),
		startTime: time.Now(),
	}
}

func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/status", s.Status).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	router.HandleFunc("/tablets", s.ListTablets).Methods("GET")
	router.HandleFunc("/tablets", s.CreateTablet).Methods("POST")
	router.HandleFunc("/tablets/{id}", s.GetTablet).Methods("GET")
	router.HandleFunc("/tablets/{id}", s.DropTablet).Methods("DELETE")
	router.HandleFunc("/txns/{id}", s.GetTxn).Methods("GET")
	router.HandleFunc("/txns/{id}", s.RemoveTxn).Methods("DELETE")
	router.HandleFunc("/txns/{id}/rowsets", s.Stage).Methods("POST")
	router.HandleFunc("/txns/{id}/publish", s.Publish).Methods("POST")
	return router
}

type statusInfo struct {
	Tablets int    `json:"tablets"`
	Txns    int    `json:"txns"`
	Uptime  string `json:"uptime"`
}

type tabletInfo struct {
	ID              uint64   `json:"id"`
	PartitionID     uint64   `json:"partition_id"`
	BaseVersion     uint64   `json:"base_version"`
	Version         uint64   `json:"version"`
	PendingVersions []uint64 `json:"pending_versions,omitempty"`
}

type rowsetInfo struct {
	Version  uint64 `json:"version"`
	RowsetID uint64 `json:"rowset_id"`
	TxnID    uint64 `json:"txn_id"`
	Size     int    `json:"size"`
}

type tabletDetail struct {
	tabletInfo
	Rowsets []rowsetInfo `json:"rowsets"`
}

type txnInfo struct {
	TxnID   uint64                     `json:"txn_id"`
	Tablets []transaction.StagedTablet `json:"tablets"`
}

func newTabletInfo(t *tablet.Tablet) tabletInfo {
	return tabletInfo{
		ID:              t.ID(),
		PartitionID:     t.PartitionID(),
		BaseVersion:     t.BaseVersion(),
		Version:         t.MaxContinuousVersion(),
		PendingVersions: t.PendingVersions(),
	}
}

func (s *Server) Status(w http.ResponseWriter, r *http.Request) {
	s.rd.JSON(w, http.StatusOK, statusInfo{
		Tablets: s.tablets.TabletCount(),
		Txns:    s.txns.TxnCount(),
		Uptime:  time.Since(s.startTime).Round(time.Second).String(),
	})
}

// ListTablets lists every tablet, or only the tablets of one partition with ?partition=<id>.
func (s *Server) ListTablets(w http.ResponseWriter, r *http.Request) {
	var tablets []*tablet.Tablet
	if p := r.URL.Query().Get("partition"); p != "" {
		partitionID, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			s.rd.JSON(w, http.StatusBadRequest, err.Error())
			return
		}
		tablets = s.tablets.GetTablets(partitionID)
	} else {
		tablets = s.tablets.AllTablets()
	}
	infos := make([]tabletInfo, 0, len(tablets))
	for _, t := range tablets {
		infos = append(infos, newTabletInfo(t))
	}
	s.rd.JSON(w, http.StatusOK, infos)
}

func (s *Server) GetTablet(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseID(w, r)
	if !ok {
		return
	}
	t := s.tablets.GetTablet(id)
	if t == nil {
		s.rd.JSON(w, http.StatusNotFound, "tablet not found")
		return
	}
	rowsets := t.Rowsets()
	detail := tabletDetail{tabletInfo: newTabletInfo(t), Rowsets: make([]rowsetInfo, 0, len(rowsets))}
	for _, vr := range rowsets {
		detail.Rowsets = append(detail.Rowsets, rowsetInfo{
			Version:  vr.Version,
			RowsetID: vr.Rowset.ID,
			TxnID:    vr.Rowset.TxnID,
			Size:     len(vr.Rowset.Data),
		})
	}
	s.rd.JSON(w, http.StatusOK, detail)
}

func (s *Server) GetTxn(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseID(w, r)
	if !ok {
		return
	}
	staged := s.txns.StagedTablets(id)
	if len(staged) == 0 {
		s.rd.JSON(w, http.StatusNotFound, "txn not found")
		return
	}
	s.rd.JSON(w, http.StatusOK, txnInfo{TxnID: id, Tablets: staged})
}

func (s *Server) parseID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		s.rd.JSON(w, http.StatusBadRequest, err.Error())
		return 0, false
	}
	return id, true
}

type createTabletRequest struct {
	ID          uint64 `json:"id"`
	PartitionID uint64 `json:"partition_id"`
	BaseVersion uint64 `json:"base_version"`
}

type stageRequest struct {
	PartitionID uint64 `json:"partition_id"`
	TabletID    uint64 `json:"tablet_id"`
	RowsetID    uint64 `json:"rowset_id"`
	// Data is base64 in JSON.
	Data []byte `json:"data"`
}

type publishRequest struct {
	Partitions []transaction.PartitionVersion `json:"partitions"`
}

type removeTxnResponse struct {
	TxnID   uint64 `json:"txn_id"`
	Removed int    `json:"removed"`
}

func (s *Server) CreateTablet(w http.ResponseWriter, r *http.Request) {
	var req createTabletRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	t := tablet.NewTablet(req.ID, req.PartitionID, req.BaseVersion)
	if err := s.tablets.AddTablet(t); err != nil {
		if _, ok := errors.Cause(err).(*tablet.ErrTabletExists); ok {
			s.rd.JSON(w, http.StatusConflict, err.Error())
			return
		}
		s.rd.JSON(w, http.StatusInternalServerError, err.Error())
		return
	}
	log.Info("tablet created", zap.Stringer("tablet", t))
	s.tabletsChanged(t.ID())
	s.rd.JSON(w, http.StatusCreated, newTabletInfo(t))
}

func (s *Server) DropTablet(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseID(w, r)
	if !ok {
		return
	}
	if !s.tablets.DropTablet(id) {
		s.rd.JSON(w, http.StatusNotFound, "tablet not found")
		return
	}
	log.Info("tablet dropped", zap.Uint64("tablet-id", id))
	s.tabletsChanged(id)
	s.rd.JSON(w, http.StatusOK, "tablet dropped")
}

func (s *Server) Stage(w http.ResponseWriter, r *http.Request) {
	txnID, ok := s.parseID(w, r)
	if !ok {
		return
	}
	var req stageRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	rs := tablet.NewRowset(req.RowsetID, txnID, req.Data)
	if err := s.txns.Stage(txnID, req.PartitionID, req.TabletID, rs); err != nil {
		if _, ok := errors.Cause(err).(*transaction.ErrAlreadyStaged); ok {
			s.rd.JSON(w, http.StatusConflict, err.Error())
			return
		}
		s.rd.JSON(w, http.StatusBadRequest, err.Error())
		return
	}
	s.rd.JSON(w, http.StatusCreated, transaction.StagedTablet{
		TabletID:    req.TabletID,
		PartitionID: req.PartitionID,
		RowsetID:    req.RowsetID,
	})
}

// Publish answers 200 even when some tablets failed; the failures are in the result.
func (s *Server) Publish(w http.ResponseWriter, r *http.Request) {
	txnID, ok := s.parseID(w, r)
	if !ok {
		return
	}
	var req publishRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	s.rd.JSON(w, http.StatusOK, s.txns.Publish(txnID, req.Partitions))
}

func (s *Server) RemoveTxn(w http.ResponseWriter, r *http.Request) {
	txnID, ok := s.parseID(w, r)
	if !ok {
		return
	}
	s.rd.JSON(w, http.StatusOK, removeTxnResponse{TxnID: txnID, Removed: s.txns.RemoveTxn(txnID)})
}

func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.rd.JSON(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (s *Server) tabletsChanged(tabletIDs ...uint64) {
	if s.OnTabletsChanged != nil {
		s.OnTabletsChanged(tabletIDs)
	}
}
