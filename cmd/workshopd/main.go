// Command workshopd runs the workshop daemon: the insight and sync HTTP
// API by default, or the MCP tools over stdio.
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
