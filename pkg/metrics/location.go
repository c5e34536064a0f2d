package metrics

import "time"

// LocationMetrics provides observability for the location adapters and the
// checkpoint writer.
//
// Implementations must be safe for concurrent use. A nil LocationMetrics
// passed to a constructor is replaced with NewNoopLocationMetrics.
type LocationMetrics interface {
	// RecordRequest records one handled request.
	//
	// Parameters:
	//   - protocol: Wire framing ("whois", "HTTP/1.1", "game", ...)
	//   - operation: "lookup", "update", or a game command
	//   - outcome: "found", "not_found", "added", "updated", "unrecognized", ...
	//   - duration: Time from the first byte read to the reply being written
	RecordRequest(protocol, operation, outcome string, duration time.Duration)

	// SetActiveConnections updates the live connection gauge of an adapter.
	SetActiveConnections(adapter string, count int32)

	// RecordConnectionAccepted increments the accepted connections counter.
	RecordConnectionAccepted(adapter string)

	// RecordConnectionClosed increments the closed connections counter.
	RecordConnectionClosed(adapter string)

	// RecordConnectionForceClosed counts connections cut at shutdown timeout.
	RecordConnectionForceClosed(adapter string)

	// RecordCheckpoint records one checkpoint attempt.
	//
	// Parameters:
	//   - backend: Checkpoint backend name ("file", "badger", "s3")
	//   - entries: Number of directory entries written
	//   - duration: Time spent writing
	//   - err: nil on success
	RecordCheckpoint(backend string, entries int, duration time.Duration, err error)

	// SetDirectoryEntries updates the directory size gauge.
	SetDirectoryEntries(count int)
}

type noopLocationMetrics struct{}

// NewNoopLocationMetrics returns a LocationMetrics that records nothing.
func NewNoopLocationMetrics() LocationMetrics {
	return noopLocationMetrics{}
}

func (noopLocationMetrics) RecordRequest(string, string, string, time.Duration) {}
func (noopLocationMetrics) SetActiveConnections(string, int32)                  {}
func (noopLocationMetrics) RecordConnectionAccepted(string)                     {}
func (noopLocationMetrics) RecordConnectionClosed(string)                       {}
func (noopLocationMetrics) RecordConnectionForceClosed(string)                  {}
func (noopLocationMetrics) RecordCheckpoint(string, int, time.Duration, error)  {}
func (noopLocationMetrics) SetDirectoryEntries(int)                             {}

// OrNoop returns m, or the no-op implementation when m is nil.
func OrNoop(m LocationMetrics) LocationMetrics {
	if m == nil {
		return NewNoopLocationMetrics()
	}
	return m
}
