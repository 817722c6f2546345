package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Warproom/cli/internal/ui"
	"github.com/BioHazard786/Warproom/cli/internal/version"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "warproom",
	Short: "Peer-to-peer interview rooms with a shared editor, test runs and live media",
	Long: `Warproom connects an interviewer and a candidate directly over WebRTC.

The host opens a room and admits one candidate. Both share the code, its
language and the host's test vectors, can run or submit the code against an
execution service, and talk over audio and video. Candidates are lightly
proctored: leaving fullscreen or switching away from the terminal is flagged.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}
