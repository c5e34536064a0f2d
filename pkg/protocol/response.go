package protocol

import "strings"

// Response is a decoded server reply.
type Response struct {
	// Success reports whether the status matched the expected success marker
	// for the protocol and operation.
	Success bool

	// Location is the looked-up value; only meaningful for a successful lookup.
	Location string

	// StatusLine is the first line of the reply.
	StatusLine string

	// Lines is the reply split on CRLF with empty segments preserved.
	Lines []string
}

// DecodeResponse interprets a server reply for a request sent with kind and op.
//
// For HTTP framings the location is the body after the first blank line.
// Replies missing the blank line fall back to the line before the final
// terminator.
func DecodeResponse(kind Kind, op Operation, raw []byte) Response {
	msg := string(raw)
	lines := strings.Split(msg, CRLF)
	resp := Response{StatusLine: lines[0], Lines: lines}

	if !kind.IsHTTP() {
		switch op {
		case Lookup:
			resp.Success = resp.StatusLine != rawNotFound && resp.StatusLine != rawUnrecognized
			resp.Location = resp.StatusLine
		case Update:
			resp.Success = resp.StatusLine == rawUpdated
		}
		return resp
	}

	resp.Success = resp.StatusLine == kind.version()+" 200 OK"
	if op != Lookup || !resp.Success {
		return resp
	}

	if i := strings.Index(msg, CRLF+CRLF); i >= 0 {
		resp.Location = strings.TrimSuffix(msg[i+2*len(CRLF):], CRLF)
	} else if len(lines) >= 2 {
		resp.Location = lines[len(lines)-2]
	}
	return resp
}
