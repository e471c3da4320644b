package commands

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/yairfalse/restitch/pkg/types"
)

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored snapshots",
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

			snaps, err := rt.engine.ListSnapshots(cmd.Context(), cred)
			if err != nil {
				return err
			}
			if len(snaps) == 0 {
				fmt.Println("no snapshots stored")
				return nil
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.Header("ID", "Kind", "Status", "Progress", "Size", "Created")
			for _, s := range snaps {
				_ = table.Append([]string{
					s.ID,
					s.Kind.String(),
					colorStatus(s.Status),
					fmt.Sprintf("%d%%", s.Progress),
					s.SizeLabel,
					s.CreatedAt.Local().Format("2006-01-02 15:04"),
				})
			}
			return table.Render()
		},
	}
}

func colorStatus(s types.SnapshotStatus) string {
	switch s {
	case types.StatusCompleted:
		return color.GreenString(s.String())
	case types.StatusFailed:
		return color.RedString(s.String())
	case types.StatusRunning:
		return color.YellowString(s.String())
	default:
		return s.String()
	}
}
