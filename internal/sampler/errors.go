package sampler

import "errors"

var (
	// ErrSourceUnavailable means a pseudo-filesystem path does not exist or
	// cannot be opened
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrParseFailure means a source exists but its content is not in the
	// expected format
	ErrParseFailure = errors.New("parse failure")

	// ErrPermissionDenied means access to a mount point or process information
	// was refused
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNoData is returned by Collect when no sub-record could be produced
	ErrNoData = errors.New("no data available")
)
