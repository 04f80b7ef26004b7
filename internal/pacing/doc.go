// Package pacing inserts randomised waits between browser actions,
// scroll checks, batch iterations and retries so that request timing does
// not form a machine-regular pattern.
package pacing
