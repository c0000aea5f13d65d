package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"aectl/internal/bench"
	"aectl/internal/logger"
)

// dispatch validates the benchmark token, builds the dispatcher, and
// runs the given verb, turning any failure into exit status 1. All
// arguments after the benchmark name are forwarded to the delegate
// script untouched.
func dispatch(cmd *cobra.Command, args []string, verb func(*bench.Dispatcher, string, []string) error) {
	name, rest := args[0], args[1:]
	if err := bench.Validate(name); err != nil {
		logger.Error("[ERROR] %v\n", err)
		_ = cmd.Usage()
		os.Exit(1)
	}
	d := bench.NewDispatcher(loadConfig())
	if err := verb(d, name, rest); err != nil {
		logger.Error("[ERROR] %v\n", err)
		os.Exit(1)
	}
}

// cmplCmd builds one benchmark via its compile delegate script.
var cmplCmd = &cobra.Command{
	Use:   "cmpl <microbench|filebench|loadmng|leveldb> [args...]",
	Short: "Compile a benchmark",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dispatch(cmd, args, (*bench.Dispatcher).Compile)
	},
}

// runCmd executes one benchmark after the pre-run cleanup protocol.
var runCmd = &cobra.Command{
	Use:   "run <microbench|filebench|loadmng|leveldb> [args...]",
	Short: "Run a benchmark (cleans up stale processes, mounts and IPC first)",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dispatch(cmd, args, (*bench.Dispatcher).Run)
	},
}

// plotCmd renders one benchmark's plots from a prior run's data.
var plotCmd = &cobra.Command{
	Use:   "plot <microbench|filebench|loadmng|leveldb> [args...]",
	Short: "Plot a benchmark's results",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dispatch(cmd, args, (*bench.Dispatcher).Plot)
	},
}

func init() {
	rootCmd.AddCommand(cmplCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(plotCmd)
}
