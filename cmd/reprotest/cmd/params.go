package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/armadaproject/reprotest/internal/common"
	"github.com/armadaproject/reprotest/internal/common/config"
	"github.com/armadaproject/reprotest/internal/common/reprocontext"
	"github.com/armadaproject/reprotest/internal/reprotest"
	"github.com/armadaproject/reprotest/internal/reprotest/scheduler"
)

const appName = "reprotest"

// initParams merges the config file, environment and the flags of cmd into app.Params.
// Flags are bound only for the command being run, so commands can share flag names.
func initParams(cmd *cobra.Command, app *reprotest.App) error {
	viper.Reset()
	cfgFile, _ := cmd.Flags().GetString("config")
	if err := config.LoadCommandlineArgsFromConfigFile(cfgFile, appName); err != nil {
		return err
	}
	if err := bindFlags(cmd.Flags()); err != nil {
		return err
	}
	if err := config.Unmarshal(app.Params); err != nil {
		return err
	}
	if viper.GetBool("verbose") {
		common.ConfigureVerboseLogging()
	}
	return nil
}

// bindFlags registers every flag with viper under its camel-cased name, e.g. --control-path
// is the controlPath config key.
func bindFlags(flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		if bindErr := viper.BindPFlag(flagKey(f.Name), f); bindErr != nil && err == nil {
			err = bindErr
		}
	})
	return err
}

func flagKey(name string) string {
	parts := strings.Split(name, "-")
	for i := 1; i < len(parts); i++ {
		if parts[i] != "" {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}

func addSchedulerFlags(cmd *cobra.Command) {
	cmd.Flags().String("payu-command", "payu", "Command used to run payu, e.g. 'module load payu && payu'.")
	cmd.Flags().String("qstat-command", "qstat", "Command used to query the state of scheduler jobs.")
	cmd.Flags().Duration("poll-interval", scheduler.DefaultPollInterval, "Time between scheduler queries while waiting for a job.")
	cmd.Flags().Duration("wait-timeout", 0, "Maximum time to wait for a single job; 0 waits indefinitely.")
}

func addReportFlags(cmd *cobra.Command) {
	cmd.Flags().String("junit-xml", "", "Write a JUnit XML report of the test cases to this path.")
	cmd.Flags().String("metrics-textfile", "", "Write metrics in the Prometheus textfile format to this path.")
	cmd.Flags().String("schema-version", "", "Checksum schema version.")
}

// signalContext returns a context that is cancelled on SIGINT/SIGTERM, so waits stop on ctrl-C.
func signalContext() (*reprocontext.Context, context.CancelFunc) {
	ctx, cancel := reprocontext.WithCancel(reprocontext.Background())
	stopSignal := make(chan os.Signal, 1)
	signal.Notify(stopSignal, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(stopSignal)
		select {
		case <-ctx.Done():
			return
		case <-stopSignal:
			ctx.Log.Warn("Interrupted, no longer waiting for jobs")
			cancel()
		}
	}()
	return ctx, cancel
}
