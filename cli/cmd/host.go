package cmd

import (
	"github.com/spf13/cobra"

	"github.com/BioHazard786/Warproom/internal/protocol"
)

var hostFlags roomFlags

var hostCmd = &cobra.Command{
	Use:     "host",
	Aliases: []string{"h"},
	Short:   "Open an interview room and admit a candidate",
	Long: `Open an interview room on the relay and wait for a candidate.

Share the printed room ID or link. Join requests appear in the room; admit
one with 'accept <id>'. Leaving closes the room for everyone.

Examples:
  warproom host
  warproom host --name "Ada" --no-media
  warproom host --domain relay.example.com --execution-url https://exec.example.com`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRoom(protocol.RoleHost, "", &hostFlags)
	},
}

func init() {
	rootCmd.AddCommand(hostCmd)
	hostFlags.register(hostCmd)
}
