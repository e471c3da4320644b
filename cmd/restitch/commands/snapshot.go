package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/manifoldco/promptui"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	apperrors "github.com/yairfalse/restitch/internal/errors"
	"github.com/yairfalse/restitch/pkg/types"
)

func newSnapshotCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot <full|memberships|settings>",
		Short: "Create a new account snapshot",
		Long: `Create a point-in-time snapshot of the account.

The build runs in the background; use --wait to watch progress here, or
poll with "restitch status <id>". At the limit of 3 stored snapshots the
oldest one must be deleted first; you will be asked to confirm unless
--yes is given.`,
		Args: cobra.ExactArgs(1),
		RunE: runSnapshot,
	}

	cmd.Flags().Bool("wait", false, "block until the snapshot completes or fails")
	cmd.Flags().BoolP("yes", "y", false, "evict the oldest snapshot without asking")

	return cmd
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	kind := types.SnapshotKind(args[0])
	if !kind.IsValid() {
		return fmt.Errorf("unknown snapshot kind %q (want full, memberships or settings)", args[0])
	}

	cred, err := requireCredential()
	if err != nil {
		return err
	}

	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := cmd.Context()
	preConfirmed, _ := cmd.Flags().GetBool("yes")

	var snap *types.Snapshot
	if preConfirmed {
		snap, err = rt.engine.ConfirmAndStartSnapshot(ctx, cred, kind)
	} else {
		snap, err = rt.engine.StartSnapshot(ctx, cred, kind)
		var ee *apperrors.EngineError
		if errors.As(err, &ee) && ee.Type == apperrors.ErrorTypeLimitReached && ee.Oldest != nil {
			if !confirmEviction(ee.Oldest) {
				return fmt.Errorf("snapshot cancelled")
			}
			snap, err = rt.engine.ConfirmAndStartSnapshot(ctx, cred, kind)
		}
	}
	if err != nil {
		return err
	}

	fmt.Printf("%s snapshot %s started\n", snap.Kind, color.CyanString(snap.ID))

	if wait, _ := cmd.Flags().GetBool("wait"); wait {
		return waitForSnapshot(ctx, rt, cred, snap.ID)
	}
	fmt.Printf("track it with: restitch status %s\n", snap.ID)
	return nil
}

// confirmEviction asks before the oldest snapshot is deleted to make room.
func confirmEviction(oldest *apperrors.EvictionCandidate) bool {
	fmt.Printf("Snapshot limit reached. Oldest snapshot: %s (%s, created %s)\n",
		oldest.ID, oldest.Kind, oldest.CreatedAt)
	prompt := promptui.Prompt{
		Label:     "Delete it and continue",
		IsConfirm: true,
	}
	_, err := prompt.Run()
	return err == nil
}

// waitForSnapshot polls status once a second until the build is terminal.
func waitForSnapshot(ctx context.Context, rt *runtime, cred, id string) error {
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription("building snapshot"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		snap, err := rt.engine.GetSnapshotStatus(ctx, cred, id)
		if err != nil {
			return err
		}
		_ = bar.Set(snap.Progress)

		if !snap.Status.IsTerminal() {
			continue
		}
		_ = bar.Finish()
		if snap.Status == types.StatusFailed {
			return fmt.Errorf("snapshot %s failed", id)
		}
		fmt.Printf("snapshot %s completed (%s)\n", color.CyanString(id), snap.SizeLabel)
		return nil
	}
}
