package types

import "time"

// UploadResult describes a backup pushed to remote storage.
type UploadResult struct {
	Success   bool              `json:"success"`
	RemoteKey string            `json:"key"`
	Bucket    string            `json:"bucket"`
	Size      int64             `json:"size"`
	Checksum  string            `json:"checksum"`
	URL       string            `json:"url,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	// LocalCopy is the redundant copy written to the local backup directory.
	// Empty when the local copy failed; LocalCopyError then says why.
	LocalCopy      string `json:"local_copy,omitempty"`
	LocalCopyError string `json:"local_copy_error,omitempty"`
	Error          string `json:"error,omitempty"`
}

// BackupEntry is one listed remote backup.
type BackupEntry struct {
	RemoteKey    string    `json:"key"`
	LastModified time.Time `json:"last_modified"`
	Size         int64     `json:"size"`
	URL          string    `json:"url"`
}

// TransferResult is returned by a download.
type TransferResult struct {
	Success bool   `json:"success"`
	Path    string `json:"path,omitempty"`
	Size    int64  `json:"size,omitempty"`
	Error   string `json:"error,omitempty"`
}

// VerifyResult is the outcome of comparing a local file against the checksum
// recorded in remote metadata.
type VerifyResult struct {
	Valid          bool   `json:"valid"`
	LocalChecksum  string `json:"local_checksum,omitempty"`
	RemoteChecksum string `json:"remote_checksum,omitempty"`
	Error          string `json:"error,omitempty"`
}

// RestoreStatus is the terminal state of a restore operation.
type RestoreStatus string

const (
	// RestoreCommitted means the live store now holds the restored content.
	RestoreCommitted RestoreStatus = "committed"
	// RestoreRolledBack means the fetch failed and the previous content was put back.
	RestoreRolledBack RestoreStatus = "rolled_back"
	// RestoreAborted means nothing was changed (search or snapshot failed).
	RestoreAborted RestoreStatus = "aborted"
	// RestoreRollbackFailed means the previous content could not be put back.
	RestoreRollbackFailed RestoreStatus = "rollback_failed"
)

// RestoreResult describes one restore operation.
type RestoreResult struct {
	Success                bool          `json:"success"`
	ID                     string        `json:"id"`
	SourceRemoteKey        string        `json:"source_key"`
	PreRestoreSnapshotPath string        `json:"pre_restore_snapshot,omitempty"`
	Status                 RestoreStatus `json:"status"`
	FailedStep             string        `json:"failed_step,omitempty"`
	Error                  string        `json:"error,omitempty"`
}
