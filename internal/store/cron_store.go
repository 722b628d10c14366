package store

import "errors"

// ErrStoreCorrupt marks a job file that exists but cannot be decoded. The
// scheduler refuses to start over a corrupt file rather than silently
// clobbering it; the .bak sibling holds the previous good snapshot.
var ErrStoreCorrupt = errors.New("cron store corrupt")
