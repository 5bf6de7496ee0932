package main

import (
	"os"

	"github.com/Navneet-55/msmesolut/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
