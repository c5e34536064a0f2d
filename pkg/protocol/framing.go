package protocol

import (
	"bytes"
	"fmt"
)

// Complete reports whether buf holds an entire request, so a reader can
// stop without waiting for the peer to close or for a timeout.
//
//   - HTTP/1.x requests are complete after the blank line that ends the
//     headers plus Content-Length body bytes. A POST without Content-Length
//     is complete once its body holds a terminated, non-empty line.
//   - HTTP/0.9 PUT requests are complete after their third line.
//   - Everything else is complete after its first line.
//
// It returns ErrTooLarge once buf exceeds MaxMessageSize.
func Complete(buf []byte) (bool, error) {
	if len(buf) > MaxMessageSize {
		return false, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(buf))
	}

	nl := bytes.IndexByte(buf, '\n')
	if nl < 0 {
		return false, nil
	}
	first := buf[:nl]

	switch {
	case bytes.Contains(first, []byte("HTTP/1.")):
		end, sepLen := headerEnd(buf)
		if end < 0 {
			return false, nil
		}
		payload := buf[end+sepLen:]
		n, ok := contentLength(string(buf[:end]))
		if !ok {
			if !bytes.HasPrefix(buf, []byte("POST ")) {
				return true, nil
			}
			return hasBodyLine(payload), nil
		}
		return len(payload) >= n, nil

	case bytes.HasPrefix(buf, []byte("PUT /")):
		return bytes.Count(buf, []byte("\n")) >= 3, nil

	default:
		return true, nil
	}
}

func headerEnd(buf []byte) (int, int) {
	if i := bytes.Index(buf, []byte("\r\n\r\n")); i >= 0 {
		return i, 4
	}
	if i := bytes.Index(buf, []byte("\n\n")); i >= 0 {
		return i, 2
	}
	return -1, 0
}

func hasBodyLine(payload []byte) bool {
	nl := bytes.IndexByte(payload, '\n')
	return nl >= 0 && len(bytes.TrimRight(payload[:nl], "\r")) > 0
}
