package client

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/marmos91/locationd/internal/logger"
	"github.com/marmos91/locationd/pkg/protocol"
)

// Defaults used when an argument is absent or cannot be parsed.
const (
	DefaultHost    = "whois.net.dcs.hull.ac.uk"
	DefaultPort    = 43
	DefaultTimeout = 1000 * time.Millisecond
)

// ErrNoArguments is returned by ParseArgs when no name was supplied.
var ErrNoArguments = errors.New("no name or location found in the arguments supplied")

// Options describes one request.
type Options struct {
	Host string
	Port int

	// Timeout bounds the connection, the write, and the read. A value <= 0
	// disables it.
	Timeout time.Duration

	Protocol  protocol.Kind
	Operation protocol.Operation
	Name      string
	Location  string

	// Strict checks the reply's status against the expected success marker
	// before reporting success. When false the reply is echoed as if it
	// succeeded.
	Strict bool
}

// DefaultOptions returns the options used before any argument is applied.
func DefaultOptions() Options {
	return Options{
		Host:      DefaultHost,
		Port:      DefaultPort,
		Timeout:   DefaultTimeout,
		Protocol:  protocol.RawDirectory,
		Operation: protocol.Lookup,
		Strict:    true,
	}
}

// Request returns the directory request described by o.
func (o Options) Request() *protocol.DirectoryRequest {
	if o.Operation == protocol.Update {
		return protocol.NewUpdate(o.Protocol, o.Name, o.Location)
	}
	return protocol.NewLookup(o.Protocol, o.Name)
}

// ParseArgs extracts request options from slash-style arguments:
//
//	/h <host>        server hostname
//	/p <port>        server port (reset to 43 when not a number)
//	/t <ms>          timeout in milliseconds, <= 0 disables (reset to 1000 when not a number)
//	/h9 /h0 /h1      HTTP/0.9, HTTP/1.0 or HTTP/1.1 instead of whois
//	<name>           first bare token, selects a lookup
//	<location>       next bare token, selects an update
//
// Flags and bare tokens may be interleaved in any order. Recoverable
// problems are logged and returned as warnings; only a missing name fails
// the parse.
func ParseArgs(args []string) (Options, []error, error) {
	opts := DefaultOptions()

	var warnings []error
	warn := func(format string, a ...any) {
		err := fmt.Errorf(format, a...)
		logger.Error("%v", err)
		warnings = append(warnings, err)
	}

	haveName := false
	for i := 0; i < len(args); i++ {
		arg := args[i]
		last := i == len(args)-1

		switch arg {
		case "/h":
			if last {
				warn("argument /h supplied without a hostname following")
				continue
			}
			i++
			opts.Host = args[i]

		case "/p":
			if last {
				warn("argument /p supplied without a port number following")
				continue
			}
			i++
			port, err := strconv.Atoi(args[i])
			if err != nil {
				warn("could not parse the argument %s into an integer to assign port, port reset to %d", args[i], DefaultPort)
				port = DefaultPort
			}
			opts.Port = port

		case "/t":
			if last {
				warn("argument /t supplied without a timeout following")
				continue
			}
			i++
			ms, err := strconv.Atoi(args[i])
			if err != nil {
				warn("could not parse the argument %s into an integer to assign timeout, timeout reset to %v", args[i], DefaultTimeout)
				opts.Timeout = DefaultTimeout
				continue
			}
			opts.Timeout = time.Duration(ms) * time.Millisecond

		case "/host", "/port":
			warn("%s is an invalid command, correct usage is %s", arg, arg[:2])
			if !last {
				i++
			}

		case "/h9":
			opts.Protocol = protocol.HTTP09
		case "/h0":
			opts.Protocol = protocol.HTTP10
		case "/h1":
			opts.Protocol = protocol.HTTP11

		default:
			if !haveName {
				opts.Name = arg
				opts.Operation = protocol.Lookup
				haveName = true
				continue
			}
			opts.Location = arg
			opts.Operation = protocol.Update
		}
	}

	if !haveName {
		return opts, warnings, ErrNoArguments
	}
	return opts, warnings, nil
}
