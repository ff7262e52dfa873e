package main

import (
	"os"

	"github.com/eternnoir/hypemix/cmd/hypemix/cmd"
	"github.com/eternnoir/hypemix/pkg/logger"
)

func main() {
	if err := cmd.Execute(); err != nil {
		logger.Error().Err(err).Msg("Application execution failed")
		os.Exit(1)
	}
}
