// Package errs defines the sentinel error taxonomy shared by the client and
// worker: ConfigurationError, ResourceError, StateError, and
// UpstreamTermination (§7).
package errs

import "errors"

var (
	// ErrConfiguration covers unsupported dtype combinations, unknown
	// weight type tags, malformed KV-append frames, and unknown task codes.
	ErrConfiguration = errors.New("configuration error")

	// ErrResource covers shared-memory open/mmap failure and thread-pool
	// start failure.
	ErrResource = errors.New("resource error")

	// ErrState covers references to an unknown weight name or cache id
	// during compute.
	ErrState = errors.New("state error")

	// ErrUpstreamTermination is raised by a worker that detects its parent
	// process has died.
	ErrUpstreamTermination = errors.New("upstream termination")
)
