package entity

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScanError_WrapAndKind(t *testing.T) {
	base := errors.New("boom")
	err := fmt.Errorf("identify: %w", NewScanError(ErrRateLimited, "429", base))

	require.Equal(t, ErrRateLimited, KindOf(err))
	require.ErrorIs(t, err, base)
	require.ErrorIs(t, err, &ScanError{Kind: ErrRateLimited})
	require.NotErrorIs(t, err, &ScanError{Kind: ErrTimeout})
}

func TestAsScanError_PlainErrorIsNetwork(t *testing.T) {
	require.Equal(t, ErrNetwork, KindOf(errors.New("dial tcp: refused")))
	require.Nil(t, AsScanError(nil))
}

func TestScanError_Fatal(t *testing.T) {
	require.False(t, NewScanError(ErrPersistenceFailure, "", nil).Fatal())
	require.True(t, NewScanError(ErrTimeout, "", nil).Fatal())
}

func TestUserMessage_EveryKind(t *testing.T) {
	kinds := []ErrorKind{ErrCameraPermissionDenied, ErrCameraUnavailable, ErrInvalidImage,
		ErrImageTooLarge, ErrNetwork, ErrRateLimited, ErrServer, ErrServiceUnavailable,
		ErrTimeout, ErrPersistenceFailure}

	seen := map[string]bool{}
	for _, k := range kinds {
		msg := UserMessage(k)
		require.NotEmpty(t, msg)
		require.False(t, seen[msg], "duplicate message for %s", k)
		seen[msg] = true
	}
}
