package main

import (
	"os"

	"propengine/cmd/propengine/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
