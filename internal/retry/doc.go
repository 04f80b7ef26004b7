// Package retry runs a task again after failures with a bounded backoff.
// Attempt is a pure helper: it owns no state beyond one call.
package retry
