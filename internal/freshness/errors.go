package freshness

import "errors"

// ErrNoMarker is returned by MarkBasicCrawled on a read-only Tracker.
var ErrNoMarker = errors.New("freshness tracker has no marker store")
