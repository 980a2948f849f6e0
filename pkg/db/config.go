package db

import "gorm.io/gorm"

// Local wraps the on-device sqlite database (cache blob, outbox, permissions).
type Local struct {
	*gorm.DB
}

// Remote wraps the cloud backend. DB is nil when no remote backend is configured.
type Remote struct {
	*gorm.DB
	Type string
}

// Configured reports whether a remote backend was dialed.
func (r *Remote) Configured() bool {
	return r != nil && r.DB != nil
}
