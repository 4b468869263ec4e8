// Package testutil provides a minimal in-process SOCKS5 proxy for tests.
//
// The proxy accepts the no-auth and username/password methods, records
// the credentials each connection presented (used to assert circuit
// isolation), resolves CONNECT targets through a caller-supplied
// function so fictional hosts can be routed to local listeners, and
// then pipes bytes in both directions.
package testutil
