// Package cmd provides the command-line interface of pagesim.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pagesim",
	Short: "pagesim simulates a paged memory with RAM backed by swap.",
	Long: `pagesim simulates a paged memory with RAM backed by swap. ` +
		`Processes of random size arrive one after another and get their ` +
		`pages from RAM first. When RAM is full, the oldest RAM page is ` +
		`moved to swap. The simulation ends when a process does not fit.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringSlice("env-file", nil,
		"Load settings from these .env files (default .env).")
	rootCmd.PersistentFlags().String("log-level", "",
		"Log level: DEBUG, INFO, WARN or ERROR.")
	rootCmd.PersistentFlags().String("log-file", "",
		"Also write the log to this file.")
}

// Execute adds all child commands to the root command and sets flags
// appropriately. It runs the registered exit handlers before leaving.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
