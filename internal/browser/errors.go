package browser

import "errors"

var (
	// ErrSessionClosed is returned by Session methods after Close.
	ErrSessionClosed = errors.New("browser session is closed")

	// ErrNavigationTimeout is returned when the list page never reaches
	// network idle within the navigation timeout.
	ErrNavigationTimeout = errors.New("navigation timed out before network idle")
)
