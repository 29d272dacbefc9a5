package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.temporal.io/sdk/temporal"
)

func TestKindOf_WrappedError(t *testing.T) {
	err := fmt.Errorf("create volume: %w", New(VolumeCreationFailure, "volume entered error state"))
	assert.Equal(t, VolumeCreationFailure, KindOf(err))
	assert.True(t, Is(err, VolumeCreationFailure))
	assert.False(t, Is(err, GuestTimeout))
}

func TestKindOf_ApplicationError(t *testing.T) {
	err := temporal.NewApplicationError("agent did not answer", string(GuestTimeout))
	assert.Equal(t, GuestTimeout, KindOf(err))
}

func TestKindOf_UnknownApplicationErrorType(t *testing.T) {
	err := temporal.NewApplicationError("boom", "SomethingElse")
	assert.Equal(t, Internal, KindOf(err))
}

func TestKindOf_PlainError(t *testing.T) {
	assert.Equal(t, Internal, KindOf(errors.New("boom")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestNewQuotaExceeded_SortsOvers(t *testing.T) {
	err := NewQuotaExceeded([]string{"volumes", "instances"})
	assert.Equal(t, []string{"instances", "volumes"}, err.Overs)
	assert.Equal(t, "quota exceeded for resources: instances, volumes", err.Error())
}

func TestIsAnyNotFound(t *testing.T) {
	assert.True(t, IsAnyNotFound(New(ComputeInstanceNotFound, "server gone")))
	assert.True(t, IsAnyNotFound(New(NotFound, "no row")))
	assert.False(t, IsAnyNotFound(New(GuestError, "x")))
}
