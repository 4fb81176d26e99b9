package browser

import "errors"

var (
	// ErrConnection is returned when the driver cannot attach to the debug endpoint.
	ErrConnection = errors.New("browser connection failed")

	// ErrElementNotFound is returned when a selector matches nothing within the wait window.
	ErrElementNotFound = errors.New("element not found")

	// ErrInteractionTimeout is returned when the page does not respond within the wait window.
	ErrInteractionTimeout = errors.New("interaction timed out")

	ErrAlreadyConnected    = errors.New("connector already has an open page")
	ErrUnsupportedSelector = errors.New("selector kind not supported for this action")
)
