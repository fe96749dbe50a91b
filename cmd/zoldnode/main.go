// Command zoldnode runs a single zold Node entry (§4.1 "Node").
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
