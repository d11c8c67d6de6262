package common

import (
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/armadaproject/reprotest/internal/common/logging"
)

// ConfigureCommandLineLogging sets up logrus for interactive use: bare messages on stdout.
func ConfigureCommandLineLogging() {
	log.SetFormatter(&logging.CommandLineFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.InfoLevel)
}

// ConfigureVerboseLogging additionally prints debug messages together with their fields,
// which is how job ids and experiment names are attached to each line.
func ConfigureVerboseLogging() {
	log.SetFormatter(&logging.CommandLineFormatter{ShowFields: true})
	log.SetLevel(log.DebugLevel)
}
