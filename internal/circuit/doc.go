// Package circuit owns the set of live circuits.
//
// A circuit handle maps to a Tor-level isolation domain: every stream
// dialed through the handle shares Tor circuits with its siblings and
// never with streams of another handle. Creation probes the proxy so a
// handle is only ever registered for a usable path, and destruction
// cascades to the streams the circuit owns.
package circuit
