package transaction

import "fmt"

// PartitionVersion asks Publish to make a partition's staged rowsets visible at Version.
type PartitionVersion struct {
	PartitionID uint64 `json:"partition_id"`
	Version     uint64 `json:"version"`
}

// TabletVersion reports a tablet's max continuous version after a publish.
type TabletVersion struct {
	TabletID uint64 `json:"tablet_id"`
	Version  uint64 `json:"version"`
}

type StatusCode int

const (
	StatusOK StatusCode = iota
	StatusFailed
)

func (c StatusCode) String() string {
	switch c {
	case StatusOK:
		return "OK"
	case StatusFailed:
		return "FAILED"
	}
	return fmt.Sprintf("StatusCode(%d)", int(c))
}

type Status struct {
	Code    StatusCode `json:"code"`
	Message string     `json:"message,omitempty"`
}

func (s Status) OK() bool {
	return s.Code == StatusOK
}

func (s Status) String() string {
	if s.OK() {
		return s.Code.String()
	}
	return fmt.Sprintf("%v: %s", s.Code, s.Message)
}

// PublishResult is what a replica reports back to the coordinator for one publish request. ErrorTabletIDs lists every
// tablet that failed, each once. TabletVersions holds the resulting version of every tablet that could be found, in
// the order they were processed, including tablets whose commit failed.
type PublishResult struct {
	ErrorTabletIDs []uint64        `json:"error_tablet_ids"`
	TabletVersions []TabletVersion `json:"tablet_versions"`
	Status         Status          `json:"status"`

	errorSet map[uint64]struct{}
	firstErr error
}

func (r *PublishResult) addVersion(tabletID, version uint64) {
	r.TabletVersions = append(r.TabletVersions, TabletVersion{TabletID: tabletID, Version: version})
}

func (r *PublishResult) addError(tabletID uint64, err error) {
	if r.errorSet == nil {
		r.errorSet = make(map[uint64]struct{})
	}
	if _, ok := r.errorSet[tabletID]; !ok {
		r.errorSet[tabletID] = struct{}{}
		r.ErrorTabletIDs = append(r.ErrorTabletIDs, tabletID)
	}
	if r.firstErr == nil {
		r.firstErr = err
	}
}

func (r *PublishResult) finish() {
	if r.firstErr == nil {
		r.Status = Status{Code: StatusOK}
		return
	}
	r.Status = Status{Code: StatusFailed, Message: r.firstErr.Error()}
}

// Err returns the first error met during the publish, or nil if every tablet was published.
func (r *PublishResult) Err() error {
	return r.firstErr
}
