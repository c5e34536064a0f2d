package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// http11FormOverhead is len("name=") + len("&location=").
const http11FormOverhead = 15

// EncodeRequest renders req in its Protocol framing. host is only used by
// HTTP/1.1, which sends it in a Host header.
func EncodeRequest(req *DirectoryRequest, host string) ([]byte, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("encode %s request: empty name", req.Protocol)
	}

	var sb strings.Builder
	switch req.Protocol {
	case RawDirectory:
		sb.WriteString(req.Name)
		if req.Operation == Update {
			sb.WriteString(" ")
			sb.WriteString(req.Location)
		}
		sb.WriteString(CRLF)

	case HTTP09:
		if req.Operation == Lookup {
			sb.WriteString("GET /" + req.Name + CRLF)
			break
		}
		sb.WriteString("PUT /" + req.Name + CRLF)
		sb.WriteString(CRLF)
		sb.WriteString(req.Location + CRLF)

	case HTTP10:
		if req.Operation == Lookup {
			sb.WriteString("GET /?" + req.Name + " HTTP/1.0" + CRLF)
			sb.WriteString(CRLF)
			break
		}
		sb.WriteString("POST /" + req.Name + " HTTP/1.0" + CRLF)
		sb.WriteString("Content-Length: " + strconv.Itoa(len(req.Location)) + CRLF)
		sb.WriteString(CRLF)
		sb.WriteString(req.Location)

	case HTTP11:
		if req.Operation == Lookup {
			sb.WriteString("GET /?name=" + req.Name + " HTTP/1.1" + CRLF)
			sb.WriteString("Host: " + host + CRLF)
			sb.WriteString(CRLF)
			break
		}
		sb.WriteString("POST / HTTP/1.1" + CRLF)
		sb.WriteString("Host: " + host + CRLF)
		sb.WriteString("Content-Length: " + strconv.Itoa(http11FormOverhead+len(req.Name)+len(req.Location)) + CRLF)
		sb.WriteString(CRLF)
		sb.WriteString("name=" + req.Name + "&location=" + req.Location)

	default:
		return nil, fmt.Errorf("encode request: unsupported protocol %s", req.Protocol)
	}

	return []byte(sb.String()), nil
}

// Reply lines shared by the encoder and the client-side decoder.
const (
	rawNotFound     = "ERROR: no entries found"
	rawUpdated      = "OK"
	rawUnrecognized = "ERROR: unrecognized request"
	contentType     = "Content-Type: text/plain"
)

// EncodeResponse renders the reply for a directory request.
//
// For a lookup, ok reports whether the name was found and location is the
// stored value. For an update, ok is always true in practice: an update
// either overwrites or adds.
func EncodeResponse(kind Kind, op Operation, ok bool, location string) []byte {
	if kind == RawDirectory {
		switch {
		case op == Update:
			return []byte(rawUpdated + CRLF)
		case ok:
			return []byte(location + CRLF)
		default:
			return []byte(rawNotFound + CRLF)
		}
	}

	status := kind.version() + " 200 OK"
	if !ok {
		status = kind.version() + " 404 Not Found"
	}

	var sb strings.Builder
	sb.WriteString(status + CRLF)
	sb.WriteString(contentType + CRLF)
	sb.WriteString(CRLF)
	if op == Lookup && ok {
		sb.WriteString(location + CRLF)
	}
	return []byte(sb.String())
}

// EncodeUnrecognized renders the reply sent when a message cannot be
// decoded. kind may be Auto when detection itself failed, in which case the
// RawDirectory form is used.
func EncodeUnrecognized(kind Kind) []byte {
	if !kind.IsHTTP() {
		return []byte(rawUnrecognized + CRLF)
	}
	return []byte(kind.version() + " 400 Bad Request" + CRLF + contentType + CRLF + CRLF)
}
