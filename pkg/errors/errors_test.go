package errors_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "github.com/attaradev/jetstream-bridge/pkg/errors"
)

func TestNewCarriesCodeAndCause(t *testing.T) {
	cause := errors.New("boom")
	err := apperrors.New(apperrors.CodeInternal, "something failed", cause)

	require.Equal(t, "something failed: boom", err.Error())
	require.Equal(t, cause, err.Unwrap())
	require.True(t, apperrors.Is(err, apperrors.CodeInternal))
}

func TestWrapPreservesCode(t *testing.T) {
	inner := apperrors.New(apperrors.CodeNotFound, "row missing", nil)
	wrapped := apperrors.Wrap(inner, "lookup failed")

	require.True(t, apperrors.Is(wrapped, apperrors.CodeNotFound))
}

func TestWrapOfPlainErrorBecomesInternal(t *testing.T) {
	wrapped := apperrors.Wrap(errors.New("plain"), "something failed")
	require.True(t, apperrors.Is(wrapped, apperrors.CodeInternal))
}

func TestWrapNilReturnsNil(t *testing.T) {
	require.NoError(t, apperrors.Wrap(nil, "no-op"))
}
