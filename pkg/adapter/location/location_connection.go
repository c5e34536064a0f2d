package location

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/marmos91/locationd/internal/logger"
	"github.com/marmos91/locationd/pkg/protocol"
)

// readChunk is the size of a single socket read.
const readChunk = 4096

// LocationConnection serves one request on one accepted connection.
//
// State progression: accepted, reading, decoded, store mutated (updates
// only), replied, closed. Every step appends to the connection's request
// log, which is written as one block when the connection ends.
type LocationConnection struct {
	server *LocationAdapter
	conn   net.Conn
	active int32
	log    []string
}

// NewLocationConnection wraps an accepted connection. active is the number
// of connections being served when this one was accepted.
func NewLocationConnection(server *LocationAdapter, conn net.Conn, active int32) *LocationConnection {
	return &LocationConnection{
		server: server,
		conn:   conn,
		active: active,
	}
}

// Serve reads one request, dispatches it, writes the reply, and closes the
// connection. Panics are recovered and logged so one connection can never
// take down the accept loop.
func (c *LocationConnection) Serve(ctx context.Context) {
	clientAddr := c.conn.RemoteAddr().String()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in %s connection handler from %s: %v", c.server.name, clientAddr, r)
			c.logf("Connection aborted by internal error")
		}
		_ = c.conn.Close()
		c.logf("Connection closed at %s", time.Now().Format(time.DateTime))
		logger.Block(logger.LevelInfo, c.log)
	}()

	c.logf("Connection received at %s from %s (active connections: %d)",
		time.Now().Format(time.DateTime), clientAddr, c.active)

	select {
	case <-ctx.Done():
		c.logf("Connection dropped: %v", errShutdown)
		return
	default:
	}

	start := time.Now()
	raw, err := c.readRequest(ctx)
	if err != nil {
		switch {
		case errors.Is(err, protocol.ErrTooLarge):
			c.logf("Request rejected: %v", err)
			_ = c.writeReply(protocol.EncodeUnrecognized(protocol.Detect(raw)))
			c.server.metrics.RecordRequest(protocol.Detect(raw).String(), "unknown", "too_large", time.Since(start))
			return
		case len(raw) == 0:
			c.logf("Failed to read request: %s", describeError(err))
			return
		default:
			c.logf("Read ended early (%s), handling the %d bytes received", describeError(err), len(raw))
		}
	}

	out := c.server.dispatcher.Handle(raw, protocol.Auto)
	c.log = append(c.log, out.Log...)
	c.server.metrics.SetDirectoryEntries(c.server.store.Len())

	if err := c.writeReply(out.Reply); err != nil {
		c.logf("Failed to send reply: %s", describeError(err))
		c.server.metrics.RecordRequest(out.Protocol, out.Operation, "write_failed", time.Since(start))
		return
	}

	c.server.metrics.RecordRequest(out.Protocol, out.Operation, out.Result, time.Since(start))
}

// readRequest reads until the buffered bytes form a complete request, the
// peer closes its side, or the read timeout expires. The bytes received so
// far are always returned alongside any error.
func (c *LocationConnection) readRequest(ctx context.Context) ([]byte, error) {
	if c.server.config.ReadTimeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.server.config.ReadTimeout)); err != nil {
			return nil, fmt.Errorf("set read deadline: %w", err)
		}
	}

	buf := make([]byte, 0, 512)
	chunk := make([]byte, readChunk)
	for {
		n, err := c.conn.Read(chunk)
		buf = append(buf, chunk[:n]...)

		if n > 0 {
			done, ferr := protocol.Complete(buf)
			if ferr != nil {
				return buf, ferr
			}
			if done {
				return buf, nil
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) && len(buf) > 0 {
				return buf, nil
			}
			return buf, err
		}

		select {
		case <-ctx.Done():
			return buf, ctx.Err()
		default:
		}
	}
}

func (c *LocationConnection) writeReply(reply []byte) error {
	if c.server.config.WriteTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.server.config.WriteTimeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}
	_, err := c.conn.Write(reply)
	return err
}

func (c *LocationConnection) logf(format string, args ...any) {
	c.log = append(c.log, fmt.Sprintf(format, args...))
}

// describeError classifies connection errors for the request log.
func describeError(err error) string {
	var netErr net.Error
	switch {
	case errors.Is(err, io.EOF):
		return "connection closed by client"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timed out"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled: " + err.Error()
	default:
		return err.Error()
	}
}
