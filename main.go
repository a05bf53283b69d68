// The main package for the leadscout executable.
package main

import (
	"fmt"
	"os"

	"github.com/ReeceHarding/new-scraper-sub001/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
