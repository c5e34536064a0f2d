package protocol

import "fmt"

// Kind identifies a wire framing. It determines framing only; lookup and
// update semantics are carried separately by Operation.
type Kind int

const (
	// Auto asks DecodeRequest to detect the framing from the message bytes.
	Auto Kind = iota
	RawDirectory
	HTTP09
	HTTP10
	HTTP11
)

func (k Kind) String() string {
	switch k {
	case Auto:
		return "auto"
	case RawDirectory:
		return "whois"
	case HTTP09:
		return "HTTP/0.9"
	case HTTP10:
		return "HTTP/1.0"
	case HTTP11:
		return "HTTP/1.1"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// IsHTTP reports whether k is one of the HTTP framings.
func (k Kind) IsHTTP() bool {
	return k == HTTP09 || k == HTTP10 || k == HTTP11
}

// version returns the status-line prefix used by an HTTP framing.
func (k Kind) version() string {
	switch k {
	case HTTP09:
		return "HTTP/0.9"
	case HTTP10:
		return "HTTP/1.0"
	default:
		return "HTTP/1.1"
	}
}

// Operation is the directory action a request performs.
type Operation int

const (
	Lookup Operation = iota
	Update
)

func (o Operation) String() string {
	switch o {
	case Lookup:
		return "lookup"
	case Update:
		return "update"
	default:
		return fmt.Sprintf("Operation(%d)", int(o))
	}
}
