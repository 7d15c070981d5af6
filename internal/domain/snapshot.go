package domain

import "time"

// Snapshot is a point-in-time copy of the node registry as persisted on
// disk. SavedAt is the snapshot version: a later snapshot always carries a
// later timestamp. Channel statuses are deliberately not part of the
// snapshot; they are rediscovered after a restart.
type Snapshot struct {
	SavedAt time.Time  `json:"saved_at"`
	Nodes   []RingNode `json:"nodes"`
}
