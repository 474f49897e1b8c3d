// Command p2pfile is the command-line interface to the transfer node. It
// can run a receiving node, send files to peers, convert files locally, and
// discover peers on the local network.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
