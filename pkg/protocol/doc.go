// Package protocol encodes and decodes the location directory wire formats.
//
// Four framings carry the same lookup/update semantics:
//
//   - RawDirectory: "<name>" / "<name> <location>"
//   - HTTP/0.9:     "GET /<name>" / "PUT /<name>", blank line, "<location>"
//   - HTTP/1.0:     "GET /?<name> HTTP/1.0" / "POST /<name> HTTP/1.0" with a raw body
//   - HTTP/1.1:     "GET /?name=<name> HTTP/1.1" / "POST / HTTP/1.1" with a form body
//
// Every line ends in CRLF. RawDirectory and HTTP/0.9 carry no version
// marker, so DecodeRequest identifies the framing by sniffing the message
// through an ordered matcher chain (see detect.go). A second, unrelated
// family of "@"-separated game messages shares the same transport and is
// decoded by DecodeGame.
package protocol
