package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/audit"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/types"
)

// Job names used by the daemon.
const (
	NightlyBackupJob = "nightly-backup"
	WeeklyDigestJob  = "weekly-digest"
)

// Backuper uploads the live store.
type Backuper interface {
	NightlyBackup(ctx context.Context, storePath string) (*types.UploadResult, error)
}

// Digester builds audit digests.
type Digester interface {
	Digest(ctx context.Context, days int) (*audit.Digest, error)
}

// BackupJob uploads storePath on schedule.
func BackupJob(schedule string, b Backuper, storePath string) Job {
	return Job{
		Name:     NightlyBackupJob,
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			_, err := b.NightlyBackup(ctx, storePath)
			return err
		},
	}
}

// DigestJob writes the markdown digest for the last days to outPath.
func DigestJob(schedule string, d Digester, days int, outPath string) Job {
	return Job{
		Name:     WeeklyDigestJob,
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			digest, err := d.Digest(ctx, days)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
				return fmt.Errorf("failed to create report directory: %w", err)
			}
			if err := os.WriteFile(outPath, []byte(digest.Markdown), 0o644); err != nil {
				return fmt.Errorf("failed to write digest: %w", err)
			}
			return nil
		},
	}
}
