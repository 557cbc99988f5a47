package videos

import "errors"

var (
	// ErrProberUnavailable indicates the duration prober is not configured.
	ErrProberUnavailable = errors.New("video duration prober unavailable")
	// ErrNoDuration indicates the probed file did not report a usable duration.
	ErrNoDuration = errors.New("video duration unavailable")
	// ErrJanitorClosed is returned when cleanup is requested after shutdown.
	ErrJanitorClosed = errors.New("media janitor closed")
)
