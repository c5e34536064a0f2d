// Package dispatch applies decoded requests to the directory and builds the
// reply bytes for one connection.
package dispatch

import (
	"errors"
	"fmt"

	"github.com/marmos91/locationd/pkg/directory"
	"github.com/marmos91/locationd/pkg/protocol"
)

// Mode selects which message family a Dispatcher understands.
type Mode int

const (
	// ModeLocation handles directory lookups and updates in any framing.
	ModeLocation Mode = iota
	// ModeGame handles "@"-separated game coordination messages.
	ModeGame
)

func (m Mode) String() string {
	if m == ModeGame {
		return "game"
	}
	return "location"
}

// Results reported in Outcome.Result.
const (
	ResultFound        = "found"
	ResultNotFound     = "not_found"
	ResultAdded        = "added"
	ResultUpdated      = "updated"
	ResultUnrecognized = "unrecognized"
	ResultGame         = "handled"
)

// Outcome is everything produced by handling one message.
type Outcome struct {
	// Reply is written back to the client verbatim.
	Reply []byte

	// Request is the decoded request, nil when decoding failed.
	Request protocol.Request

	// Protocol and Operation label the request for metrics.
	Protocol  string
	Operation string

	// Result summarizes the store outcome (see the Result constants).
	Result string

	// Log holds the request log lines in append order.
	Log []string
}

func (o *Outcome) logf(format string, args ...any) {
	o.Log = append(o.Log, fmt.Sprintf(format, args...))
}

// Dispatcher turns raw client messages into replies.
//
// A Dispatcher is shared by every connection of an adapter. The directory is
// synchronized by directory.Store and the game peer state by its own mutex.
type Dispatcher struct {
	store *directory.Store
	mode  Mode
	game  *gameState
}

// New returns a Dispatcher serving store in mode.
func New(store *directory.Store, mode Mode) *Dispatcher {
	return &Dispatcher{
		store: store,
		mode:  mode,
		game:  &gameState{},
	}
}

// Handle decodes raw, applies it to the directory, and returns the reply.
// hint is passed to protocol.DecodeRequest; use protocol.Auto to detect the
// framing. Handle never fails: undecodable messages get an "unrecognized"
// reply.
func (d *Dispatcher) Handle(raw []byte, hint protocol.Kind) Outcome {
	out := Outcome{}
	out.logf("Client sent: %q", string(raw))

	if d.mode == ModeGame {
		d.handleGame(&out, protocol.DecodeGame(raw))
	} else {
		d.handleDirectory(&out, raw, hint)
	}

	out.logf("Server replied with: %q", string(out.Reply))
	return out
}

func (d *Dispatcher) handleDirectory(out *Outcome, raw []byte, hint protocol.Kind) {
	req, err := protocol.DecodeRequest(hint, raw)
	if err != nil {
		kind := hint
		var decErr *protocol.DecodeError
		if errors.As(err, &decErr) {
			kind = decErr.Protocol
		}
		out.Protocol = kind.String()
		out.Operation = "unknown"
		out.Result = ResultUnrecognized
		out.Reply = protocol.EncodeUnrecognized(kind)
		out.logf("Could not interpret request: %v", err)
		return
	}

	out.Request = req
	out.Protocol = req.Protocol.String()
	out.Operation = req.Operation.String()
	out.logf("Extracted data from the client message: %s", req.Summary())

	switch req.Operation {
	case protocol.Lookup:
		d.lookup(out, req)
	case protocol.Update:
		d.update(out, req)
	}
}

func (d *Dispatcher) lookup(out *Outcome, req *protocol.DirectoryRequest) {
	location, err := d.store.Get(req.Name)
	if err != nil {
		out.Result = ResultNotFound
		out.Reply = protocol.EncodeResponse(req.Protocol, protocol.Lookup, false, "")
		out.logf("Server found no entry for the %s lookup of name %q", req.Protocol, req.Name)
		return
	}

	out.Result = ResultFound
	out.Reply = protocol.EncodeResponse(req.Protocol, protocol.Lookup, true, location)
	out.logf("Server found an entry for the %s lookup of name %q", req.Protocol, req.Name)
}

func (d *Dispatcher) update(out *Outcome, req *protocol.DirectoryRequest) {
	out.Reply = protocol.EncodeResponse(req.Protocol, protocol.Update, true, "")

	if d.store.Contains(req.Name) && d.store.Set(req.Name, req.Location) == nil {
		out.Result = ResultUpdated
		out.logf("Server found the user %q in the database and updated their location to %q", req.Name, req.Location)
		return
	}

	if d.store.Add(req.Name, req.Location) {
		out.Result = ResultAdded
		out.logf("Server did not find the user %q in the database and added them with location set to %q", req.Name, req.Location)
		return
	}

	// Another connection added the name between Contains and Add.
	_ = d.store.Set(req.Name, req.Location)
	out.Result = ResultUpdated
	out.logf("Server found the user %q in the database and updated their location to %q", req.Name, req.Location)
}
