package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var mirrorsCmd = &cobra.Command{
	Use:   "mirrors",
	Short: "Print the mirror candidates discovery currently yields",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := newNitterClient()
		if err != nil {
			return err
		}
		defer client.Close()

		for _, m := range client.Directory.ListCandidates(cmd.Context()) {
			fmt.Fprintln(cmd.OutOrStdout(), m)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mirrorsCmd)
}
