package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newDownloadCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download <snapshot-id>",
		Short: "Export a completed snapshot's payload as JSON",
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

			snap, err := rt.engine.DownloadSnapshot(cmd.Context(), cred, args[0])
			if err != nil {
				return err
			}

			raw, err := json.MarshalIndent(snap.Payload, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode payload: %w", err)
			}

			if out, _ := cmd.Flags().GetString("output"); out != "" {
				if err := os.WriteFile(out, raw, 0o600); err != nil {
					return fmt.Errorf("failed to write %s: %w", out, err)
				}
				fmt.Printf("snapshot payload written to %s (%s)\n", out, snap.SizeLabel)
				return nil
			}
			_, err = os.Stdout.Write(append(raw, '\n'))
			return err
		},
	}

	cmd.Flags().StringP("output", "o", "", "write the payload to a file instead of stdout")
	return cmd
}
