// Command kbctl manages workspace knowledge bases from the command line.
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	if err := run(context.Background(), os.Args, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "kbctl: %v\n", err)
		os.Exit(1)
	}
}
