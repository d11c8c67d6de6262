package main

import (
	"os"

	"github.com/armadaproject/reprotest/cmd/reprotest/cmd"
	"github.com/armadaproject/reprotest/internal/common"
)

// Config is handled by cmd/params.go
func main() {
	common.ConfigureCommandLineLogging()
	err := cmd.RootCmd().Execute()
	if err != nil {
		os.Exit(1)
	}
}
