// Command cleardealctl administers a ClearDeal database: schema migrations,
// file backups and the legacy browser-storage snapshot format.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
