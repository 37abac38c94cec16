package main

import (
	"context"
	"fmt"
	"os"

	"github.com/okian/scoreboard/internal/cli"
)

func main() {
	if err := cli.NewLoadgenCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
