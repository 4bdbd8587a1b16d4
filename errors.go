package devpoll

import "github.com/jpalmerr/devpoll/internal/poller"

// Errors reported in [Result.Err]. Test with errors.Is.
var (
	// ErrTimeout means the record was not resolved within the queue timeout.
	ErrTimeout = poller.ErrTimeout

	// ErrStatus means the request finished without HTTP 200. Only reported
	// when [WithFailFast] is set; otherwise such records wait out the timeout.
	ErrStatus = poller.ErrStatus

	// ErrTransportUnavailable is joined with ErrTimeout when no send
	// mechanism could carry the request.
	ErrTransportUnavailable = poller.ErrTransportUnavailable
)
