package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/yairfalse/restitch/pkg/types"
)

func newRestoreCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <snapshot-id>",
		Short: "Reconcile the live account toward a stored snapshot",
		Long: `Restore compares the stored snapshot against live account state and
writes changed profile fields back, one at a time. Membership differences
are reported only; guilds are never rejoined automatically.

Writes blocked by a verification challenge are retried once with a token
from the configured solving service, which needs a solver key and at
least one proxy.`,
		Args: cobra.ExactArgs(1),
		RunE: runRestore,
	}

	cmd.Flags().String("solver-key", "", "solving service client key (overrides config)")
	cmd.Flags().StringSlice("proxy", nil, "host:port proxy for challenge solving (repeatable, overrides config)")

	return cmd
}

func runRestore(cmd *cobra.Command, args []string) error {
	cred, err := requireCredential()
	if err != nil {
		return err
	}
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	solverKey, _ := cmd.Flags().GetString("solver-key")
	proxies, _ := cmd.Flags().GetStringSlice("proxy")

	report, err := rt.engine.Restore(cmd.Context(), cred, args[0],
		effectiveSolverKey(solverKey), effectiveProxies(proxies))
	if err != nil {
		return err
	}

	printReport(report)
	return nil
}

func printReport(report *types.RestoreReport) {
	if report.Summary.TotalChanges == 0 {
		fmt.Println("account already matches the snapshot, nothing to do")
		return
	}

	for _, c := range report.ProfileChanges {
		switch c.Status {
		case types.ChangeUpdated:
			fmt.Printf("%s %s: %q -> %q\n", color.GreenString("updated"), c.Field, c.OldValue, c.NewValue)
		case types.ChangeFailed:
			fmt.Printf("%s  %s: %s\n", color.RedString("failed"), c.Field, c.Error)
		}
	}

	for _, g := range report.ServerChanges.ToJoin {
		fmt.Printf("%s  rejoin %s (%s): %s\n", color.YellowString("manual"), g.Name, g.ID, g.Detail)
	}
	for _, g := range report.ServerChanges.Differences {
		fmt.Printf("info    %s (%s): %s\n", g.Name, g.ID, g.Detail)
	}

	for _, c := range report.SettingsChanges {
		fmt.Printf("%s  %s: %s\n", color.YellowString("review"), c.Field, c.Detail)
	}

	fmt.Printf("\n%d changes: %d profile, %d guilds to rejoin, %d settings to review\n",
		report.Summary.TotalChanges,
		report.Summary.ProfileUpdates,
		report.Summary.GuildsToRejoin,
		report.Summary.SettingsUpdates)
}
