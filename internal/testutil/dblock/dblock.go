package dblock

import (
	"net"
	"time"
)

// Test packages that share the database truncate tables, so only one may run
// at a time. A local TCP listener works as a cross-process mutex without
// needing anything outside the standard toolchain.
const lockAddr = "127.0.0.1:45433"

func Acquire() func() {
	for {
		ln, err := net.Listen("tcp", lockAddr)
		if err == nil {
			return func() { ln.Close() }
		}
		time.Sleep(50 * time.Millisecond)
	}
}
