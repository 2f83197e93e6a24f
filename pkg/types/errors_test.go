package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	cause := errors.New("connection reset")
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"kind only", &Error{Kind: KindNotFound}, "NotFound"},
		{"op and message", NewError(KindNotFound, "download", "no such backup"), "download: NotFound: no such backup"},
		{"step", &Error{Kind: KindTransferFailed, Op: "restore", Step: "fetch", Err: cause}, "restore: TransferFailed at fetch: connection reset"},
		{"wrapped", WrapError(KindTransferFailed, "upload", cause, "put %s", "backups/a"), "upload: TransferFailed: put backups/a: connection reset"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestErrorIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewError(KindIntegrityMismatch, "verify", "checksum mismatch"))
	assert.ErrorIs(t, err, ErrIntegrityMismatch)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, KindIntegrityMismatch, KindOf(err))
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))

	wrapped := WrapError(KindTransferFailed, "upload", errors.New("timeout"), "put failed")
	assert.True(t, errors.Is(wrapped, ErrTransferFailed))
	assert.EqualError(t, errors.Unwrap(wrapped), "timeout")
}

func TestStepAndDetail(t *testing.T) {
	err := &Error{Kind: KindRollbackFailed, Op: "restore", Step: "rollback", Message: "snapshot unreadable"}
	assert.Equal(t, "rollback", StepOf(fmt.Errorf("x: %w", err)))
	assert.Equal(t, "snapshot unreadable", err.Detail())
	assert.Equal(t, "boom", (&Error{Kind: KindTransferFailed, Err: errors.New("boom")}).Detail())
	assert.Equal(t, "NotFound", ErrNotFound.Detail())
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("value must be a hex color")
	assert.True(t, IsValidationError(err))
	assert.False(t, IsValidationError(ErrNotFound))
	assert.Equal(t, "update", err.Op)
}
