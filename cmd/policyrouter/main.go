package main

import (
	"os"

	"github.com/solatis/policyrouter/cmd/policyrouter/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
