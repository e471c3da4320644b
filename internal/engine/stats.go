package engine

import (
	"context"
	"strconv"
	"strings"

	"github.com/yairfalse/restitch/internal/retention"
	"github.com/yairfalse/restitch/pkg/types"
)

// AccountStats summarizes an owner's stored snapshots.
type AccountStats struct {
	SnapshotCount int    `json:"snapshot_count"`
	TotalSize     string `json:"total_size"`
	MaxSnapshots  int    `json:"max_snapshots"`
}

// Stats aggregates snapshot count and size for the caller.
func (e *Engine) Stats(ctx context.Context, credential string) (*AccountStats, error) {
	snaps, err := e.ListSnapshots(ctx, credential)
	if err != nil {
		return nil, err
	}

	var totalBytes float64
	for _, s := range snaps {
		totalBytes += sizeLabelBytes(s.SizeLabel)
	}
	return &AccountStats{
		SnapshotCount: len(snaps),
		TotalSize:     types.SizeLabelFor(int(totalBytes)),
		MaxSnapshots:  retention.MaxSnapshotsPerOwner,
	}, nil
}

// sizeLabelBytes reverses SizeLabelFor well enough for aggregation.
func sizeLabelBytes(label string) float64 {
	fields := strings.Fields(label)
	if len(fields) != 2 {
		return 0
	}
	n, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0
	}
	switch fields[1] {
	case "MB":
		return n * 1024 * 1024
	case "KB":
		return n * 1024
	case "B":
		return n
	default:
		return 0
	}
}
