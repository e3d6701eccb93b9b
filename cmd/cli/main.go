package main

import (
	"fmt"
	"os"

	"github.com/pratik-mahalle/complyflow/internal/cli"
)

// set with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := cli.Execute(version); err != nil {
		fmt.Fprintf(os.Stderr, "complyflow: %v\n", err)
		os.Exit(1)
	}
}
