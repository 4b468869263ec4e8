// Package torgate is a synchronous boundary over the Tor network:
// string-handle-addressed circuits and streams with blocking I/O and
// integer status codes.
//
// The package exposes two layers. Gateway is the Go-native layer:
// an explicit session object with error-returning methods. On top of it
// sits the boundary surface: package-level functions over a single
// default Gateway that return 1 for success and 0 for failure and fill
// caller-supplied buffers, the calling convention expected by foreign
// runtimes that cannot consume Go errors. Failure causes are not
// distinguished at that surface; the log and the lifecycle journal are
// the side channels.
//
// Usage follows a strict session lifecycle:
//
//	torgate.Init()
//	torgate.Connect()
//	torgate.CreateCircuit("c1")
//	idBuf := make([]byte, 128)
//	torgate.ConnectStream("c1", "example.com", 80, idBuf)
//	...
//	torgate.Disconnect()
//
// Every operation on circuits and streams fails before Init and
// Connect, and Disconnect tears down every live resource.
package torgate
