package tablet

import "fmt"

// ErrVersionConflict is returned when a rowset cannot be committed at a version, either because the version already
// holds a different rowset or because the version is not above the tablet's base version.
type ErrVersionConflict struct {
	TabletID uint64
	Version  uint64
	Reason   string
}

func (e *ErrVersionConflict) Error() string {
	return fmt.Sprintf("tablet %d commit rowset at version %d failed: %s", e.TabletID, e.Version, e.Reason)
}

type ErrVersionNotVisible struct {
	TabletID uint64
	Version  uint64
	Visible  uint64
}

func (e *ErrVersionNotVisible) Error() string {
	return fmt.Sprintf("tablet %d version %d is not visible, max continuous version is %d", e.TabletID, e.Version, e.Visible)
}

type ErrTabletExists struct {
	TabletID uint64
}

func (e *ErrTabletExists) Error() string {
	return fmt.Sprintf("tablet %d already exists", e.TabletID)
}
