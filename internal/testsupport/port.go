// Package testsupport collects small helpers shared by this module's
// test suites, so a test exercising a real TCP listener doesn't have to
// hardcode a port that might already be bound on the CI host.
package testsupport

import "net"

// FreePort asks the kernel for a currently unused TCP port by binding
// to port 0 and immediately releasing it, the same "127.0.0.1:0"
// resolution idiom the reference transport tests use to avoid a fixed
// port. There's a race between releasing the listener here and the
// caller binding its own, but it is the same race every such helper in
// the ecosystem accepts.
func FreePort(t interface{ Fatalf(format string, args ...any) }) int {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("testsupport: FreePort: %v", err)
		return 0
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}
