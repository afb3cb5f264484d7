// Command kafkaxd is a thin demo host around the kafkax library: it wires
// a broker connection, a decoder binding, and a poll loop that drains
// events and logs them. It exists to exercise the public API end to end,
// not as a production daemon.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
