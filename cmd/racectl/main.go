// Command racectl acquires documents from the command line using the same
// strategy race as the racefetch server.
package main

import (
	"fmt"
	"os"

	"github.com/use-agent/racefetch/app"
)

func main() {
	if err := newRootCmd(app.Build).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
