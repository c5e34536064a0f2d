// Package client sends one directory request to a location server and
// reports the outcome the way the location command prints it.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/marmos91/locationd/internal/logger"
	"github.com/marmos91/locationd/pkg/protocol"
)

// Result is the outcome of one request.
type Result struct {
	Request  *protocol.DirectoryRequest
	Raw      []byte
	Response protocol.Response
}

// Client sends a single request per Do call.
type Client struct {
	opts Options
}

// New returns a Client for opts.
func New(opts Options) *Client {
	return &Client{opts: opts}
}

// Options returns the client's request options.
func (c *Client) Options() Options {
	return c.opts
}

// Do connects, writes the encoded request, and reads the reply until the
// server closes the connection or the timeout elapses. A timeout after part
// of the reply arrived is not an error; the partial reply is decoded.
func (c *Client) Do(ctx context.Context) (*Result, error) {
	req := c.opts.Request()
	payload, err := protocol.EncodeRequest(req, c.opts.Host)
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(c.opts.Host, strconv.Itoa(c.opts.Port))
	dialer := net.Dialer{}
	if c.opts.Timeout > 0 {
		dialer.Timeout = c.opts.Timeout
	}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the server with hostname %s on port %d: %w",
			c.opts.Host, c.opts.Port, err)
	}
	defer func() { _ = conn.Close() }()

	if c.opts.Timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(c.opts.Timeout)); err != nil {
			return nil, fmt.Errorf("set deadline: %w", err)
		}
	}

	logger.Debug("Sending %s %s request to %s: %q", req.Protocol, req.Operation, addr, payload)
	if _, err := conn.Write(payload); err != nil {
		return nil, fmt.Errorf("failed to send the request: %w", err)
	}

	raw, err := io.ReadAll(conn)
	if err != nil {
		var netErr net.Error
		if !(errors.As(err, &netErr) && netErr.Timeout() && len(raw) > 0) {
			return nil, fmt.Errorf("failed to read the response from the server: %w", err)
		}
		logger.Debug("Read timed out after %d bytes, using the partial reply", len(raw))
	}
	logger.Debug("Server replied: %q", raw)

	return &Result{
		Request:  req,
		Raw:      raw,
		Response: protocol.DecodeResponse(req.Protocol, req.Operation, raw),
	}, nil
}

// Report returns the lines printed for r.
//
// In strict mode a failed lookup prints "ERROR: no entries found" and a
// failed update prints the error together with the server's status line.
// Otherwise the reply is reported as successful without checking it.
func (r *Result) Report(strict bool) []string {
	name := r.Request.Name

	if r.Request.Operation == protocol.Update {
		if strict && !r.Response.Success {
			return []string{
				"Error: User location was not updated successfully",
				"Server responded with: " + r.Response.StatusLine,
			}
		}
		return []string{name + " location changed to be " + r.Request.Location}
	}

	if strict {
		if !r.Response.Success {
			return []string{"ERROR: no entries found"}
		}
		return []string{name + " is " + r.Response.Location}
	}

	return []string{name + " is " + r.uncheckedLocation()}
}

// uncheckedLocation picks the location line without interpreting the status.
func (r *Result) uncheckedLocation() string {
	lines := r.Response.Lines
	if !r.Request.Protocol.IsHTTP() || len(lines) < 2 {
		return lines[0]
	}
	return lines[len(lines)-2]
}
