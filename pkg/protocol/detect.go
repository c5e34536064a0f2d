package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// DecodeError reports a message that could not be decoded. Protocol is the
// framing detected before decoding failed, or Auto when nothing matched.
type DecodeError struct {
	Protocol Kind
	Reason   string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s request: %s", e.Protocol, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return ErrUnrecognized
}

// matcher is one link of the detection chain.
type matcher struct {
	kind   Kind
	match  func(msg string) bool
	decode func(msg string, lines []string) (*DirectoryRequest, string)
}

// detectionChain is evaluated in order and the first match wins. The order
// is part of the wire contract: HTTP/1.0 and HTTP/1.1 requests also start
// with "GET /", so they must be tested before HTTP/0.9, and every message
// satisfies the RawDirectory matcher.
var detectionChain = []matcher{
	{
		kind:   HTTP10,
		match:  func(msg string) bool { return strings.Contains(msg, "HTTP/1.0") },
		decode: decodeHTTP10,
	},
	{
		kind:   HTTP11,
		match:  func(msg string) bool { return strings.Contains(msg, "HTTP/1.1") },
		decode: decodeHTTP11,
	},
	{
		kind: HTTP09,
		match: func(msg string) bool {
			return strings.HasPrefix(msg, "GET /") || strings.HasPrefix(msg, "PUT /")
		},
		decode: decodeHTTP09,
	},
	{
		kind:   RawDirectory,
		match:  func(string) bool { return true },
		decode: decodeRaw,
	},
}

// Detect returns the framing the detection chain assigns to raw.
func Detect(raw []byte) Kind {
	msg := string(raw)
	for _, m := range detectionChain {
		if m.match(msg) {
			return m.kind
		}
	}
	return Auto
}

// DecodeRequest decodes a complete client message.
//
// With hint set to Auto the framing is detected with the detection chain;
// otherwise the message is decoded as hint directly. Failures are returned
// as *DecodeError, which matches ErrUnrecognized with errors.Is.
func DecodeRequest(hint Kind, raw []byte) (*DirectoryRequest, error) {
	msg := string(raw)
	if len(raw) > MaxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(raw))
	}

	lines := splitLines(msg)
	if len(lines) == 0 {
		return nil, &DecodeError{Protocol: hint, Reason: "empty message"}
	}

	for _, m := range detectionChain {
		if hint != Auto && m.kind != hint {
			continue
		}
		if hint == Auto && !m.match(msg) {
			continue
		}

		req, reason := m.decode(msg, lines)
		if req == nil {
			return nil, &DecodeError{Protocol: m.kind, Reason: reason}
		}
		req.Protocol = m.kind
		return req, nil
	}

	return nil, &DecodeError{Protocol: hint, Reason: "unsupported protocol"}
}

// splitLines splits msg on line terminators and drops empty lines. A bare
// LF is accepted as a terminator.
func splitLines(msg string) []string {
	raw := strings.Split(msg, "\n")
	out := make([]string, 0, len(raw))
	for _, line := range raw {
		line = strings.TrimSuffix(line, "\r")
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// between returns the text after the first start and before the last end.
func between(input, start, end string) (string, bool) {
	i := strings.Index(input, start)
	if i < 0 {
		return "", false
	}
	i += len(start)
	j := strings.LastIndex(input, end)
	if j < i {
		return "", false
	}
	return input[i:j], true
}

// body returns the payload after the header terminator, truncated to the
// Content-Length header when one is present.
func body(msg string) (string, bool) {
	sep := "\r\n\r\n"
	i := strings.Index(msg, sep)
	if i < 0 {
		sep = "\n\n"
		if i = strings.Index(msg, sep); i < 0 {
			return "", false
		}
	}

	header, payload := msg[:i], msg[i+len(sep):]
	if n, ok := contentLength(header); ok && n <= len(payload) {
		return payload[:n], true
	}
	return strings.TrimRight(payload, "\r\n"), true
}

func contentLength(header string) (int, bool) {
	for _, line := range splitLines(header) {
		name, value, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

func decodeHTTP10(msg string, lines []string) (*DirectoryRequest, string) {
	switch {
	case strings.HasPrefix(msg, "GET"):
		name, ok := between(lines[0], "/?", " ")
		if !ok || name == "" {
			return nil, "missing name in request line"
		}
		return NewLookup(HTTP10, name), ""

	case strings.HasPrefix(msg, "POST"):
		name, ok := between(lines[0], "/", " ")
		if !ok || name == "" {
			return nil, "missing name in request line"
		}
		location, ok := body(msg)
		if !ok {
			location = lines[len(lines)-1]
		}
		return NewUpdate(HTTP10, name, location), ""

	default:
		return nil, "expected GET or POST"
	}
}

func decodeHTTP11(msg string, lines []string) (*DirectoryRequest, string) {
	switch {
	case strings.HasPrefix(msg, "GET"):
		name, ok := between(lines[0], "/?name=", " ")
		if !ok || name == "" {
			return nil, "missing name query parameter"
		}
		return NewLookup(HTTP11, name), ""

	case strings.HasPrefix(msg, "POST"):
		form, ok := body(msg)
		if !ok {
			form = lines[len(lines)-1]
		}
		i := strings.Index(form, "name=")
		if i < 0 {
			return nil, "missing name field in body"
		}
		rest := form[i+len("name="):]
		j := strings.Index(rest, "&location=")
		if j <= 0 {
			return nil, "missing location field in body"
		}
		return NewUpdate(HTTP11, rest[:j], rest[j+len("&location="):]), ""

	default:
		return nil, "expected GET or POST"
	}
}

func decodeHTTP09(msg string, lines []string) (*DirectoryRequest, string) {
	first := lines[0]
	switch {
	case strings.HasPrefix(first, "GET /"):
		name := first[len("GET /"):]
		if name == "" {
			return nil, "missing name"
		}
		return NewLookup(HTTP09, name), ""

	case strings.HasPrefix(first, "PUT /"):
		name := first[len("PUT /"):]
		if name == "" {
			return nil, "missing name"
		}
		location, ok := body(msg)
		if !ok {
			if len(lines) < 2 {
				return nil, "missing location"
			}
			location = lines[len(lines)-1]
		}
		return NewUpdate(HTTP09, name, location), ""

	default:
		return nil, "expected GET or PUT"
	}
}

func decodeRaw(msg string, _ []string) (*DirectoryRequest, string) {
	if i := strings.Index(msg, " "); i >= 0 {
		name := msg[:i]
		if name == "" {
			return nil, "missing name"
		}
		return NewUpdate(RawDirectory, name, strings.TrimSpace(msg[i:])), ""
	}

	name := strings.TrimSpace(msg)
	if name == "" {
		return nil, "missing name"
	}
	return NewLookup(RawDirectory, name), ""
}
