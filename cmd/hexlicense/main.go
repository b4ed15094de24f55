// Command hexlicense validates a license from the command line and prints
// the resulting license summary.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
