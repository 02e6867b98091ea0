// Command advisor builds zone-based short strangles on NIFTY and BANKNIFTY,
// tracks the adopted trades and reports on them over Telegram.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
