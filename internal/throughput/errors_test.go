package throughput

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLinkError_Is(t *testing.T) {
	err := fmt.Errorf("send: %w", &LinkError{Kind: NotConnected, Msg: "peer gone"})

	assert.ErrorIs(t, err, ErrNotConnected)
	assert.NotErrorIs(t, err, ErrConnectionRejected)
	assert.True(t, IsKind(err, NotConnected))
	assert.False(t, IsKind(err, SendFailure))
}

func TestLinkError_Error(t *testing.T) {
	assert.Equal(t, "not_connected", ErrNotConnected.Error())
	assert.Equal(t, "exchange_failure: mtu unavailable", (&LinkError{Kind: ExchangeFailure, Msg: "mtu unavailable"}).Error())

	var nilErr *LinkError
	assert.Equal(t, "<nil>", nilErr.Error())
	assert.False(t, nilErr.Is(ErrNotConnected))
}

func TestSendError(t *testing.T) {
	cause := errors.New("buffer full")
	err := fmt.Errorf("pump: %w", &SendError{Fragment: 2, Offset: 122, Err: cause})

	assert.ErrorIs(t, err, ErrSendFailure)
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsKind(err, SendFailure))
	assert.Contains(t, err.Error(), "fragment 2 (offset 122)")
}

func TestSendError_WrapsLinkError(t *testing.T) {
	err := fmt.Errorf("pump: %w", &SendError{Fragment: 1, Offset: 61, Err: ErrNotConnected})

	assert.True(t, IsKind(err, SendFailure))
	assert.True(t, IsKind(err, NotConnected))
	assert.False(t, IsKind(err, ConnectionRejected))
	assert.ErrorIs(t, err, ErrSendFailure)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{name: "nil", in: nil, want: nil},
		{name: "not connected", in: errors.New("Device Not Connected"), want: ErrNotConnected},
		{name: "disconnected", in: errors.New("conn disconnected"), want: ErrNotConnected},
		{name: "already connected", in: errors.New("device already connected"), want: ErrConnectionRejected},
		{name: "already typed", in: ErrExchangeFailure, want: ErrExchangeFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeError(tt.in)
			if tt.want == nil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tt.want)
		})
	}

	other := errors.New("something else")
	assert.Same(t, other, NormalizeError(other))
}
