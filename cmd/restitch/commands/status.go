package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <snapshot-id>",
		Short: "Show the status of one snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cred, err := requireCredential()
			if err != nil {
				return err
			}
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			snap, err := rt.engine.GetSnapshotStatus(cmd.Context(), cred, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("id:       %s\n", snap.ID)
			fmt.Printf("kind:     %s\n", snap.Kind)
			fmt.Printf("status:   %s\n", colorStatus(snap.Status))
			fmt.Printf("progress: %d%%\n", snap.Progress)
			fmt.Printf("size:     %s\n", snap.SizeLabel)
			fmt.Printf("created:  %s\n", snap.CreatedAt.Local().Format("2006-01-02 15:04:05"))
			return nil
		},
	}
}
