package main

import (
	"os"

	"github.com/Aiuser8/thallos-llm-service/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}