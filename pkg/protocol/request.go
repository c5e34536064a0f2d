package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrUnrecognized is returned when a message matches no known request shape.
	ErrUnrecognized = errors.New("protocol: unrecognized request")

	// ErrTooLarge is returned when a message exceeds MaxMessageSize.
	ErrTooLarge = errors.New("protocol: message too large")
)

// CRLF terminates every line on the wire.
const CRLF = "\r\n"

// MaxMessageSize bounds a single request or response.
const MaxMessageSize = 64 * 1024

// Request is a decoded client message. It is either a *DirectoryRequest or
// a *GameRequest.
type Request interface {
	isRequest()
	// Summary describes the decoded fields for request logs.
	Summary() string
}

// DirectoryRequest is a lookup or update against the name directory.
//
// HasLocation is true exactly when Operation is Update. An update may carry
// an empty Location.
type DirectoryRequest struct {
	Protocol    Kind
	Operation   Operation
	Name        string
	Location    string
	HasLocation bool
}

func (*DirectoryRequest) isRequest() {}

// Summary implements Request.
func (r *DirectoryRequest) Summary() string {
	if r.HasLocation {
		return fmt.Sprintf("protocol=%s operation=%s name=%q location=%q", r.Protocol, r.Operation, r.Name, r.Location)
	}
	return fmt.Sprintf("protocol=%s operation=%s name=%q", r.Protocol, r.Operation, r.Name)
}

// NewLookup builds a lookup request.
func NewLookup(kind Kind, name string) *DirectoryRequest {
	return &DirectoryRequest{Protocol: kind, Operation: Lookup, Name: name}
}

// NewUpdate builds an update request.
func NewUpdate(kind Kind, name, location string) *DirectoryRequest {
	return &DirectoryRequest{Protocol: kind, Operation: Update, Name: name, Location: location, HasLocation: true}
}
