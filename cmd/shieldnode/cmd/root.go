package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var log zerolog.Logger

var rootCmd = &cobra.Command{
	Use:   "shieldnode",
	Short: "A privacy-preserving chain-following node",
}

// Execute runs the root command, exiting the process on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	log = zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()
	cobra.OnInitialize(initConfig)
	rootCmd.AddCommand(runCmd)
}

func initConfig() {
	viper.SetEnvPrefix("SHIELDNODE")
	viper.AutomaticEnv()
}
