package session

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindNone},
		{"already started", ErrAlreadyStarted, KindAlreadyStarted},
		{"aborted", ErrOperationAborted, KindOperationAborted},
		{"address in use", ErrAddressInUse, KindAddressInUse},
		{"handshake", fmt.Errorf("%w: %w", ErrHandshakeFailed, io.EOF), KindHandshakeFailed},
		{"silence", ErrSilenceTimeout, KindTimeout},
		{"connect timeout", ErrConnectTimeout, KindTimeout},
		{"transport", &TransportError{Op: "read", Err: io.EOF}, KindTransport},
		{"wrapped transport", fmt.Errorf("x: %w", &TransportError{Op: "write", Err: io.ErrClosedPipe}), KindTransport},
		{"buffer full", ErrBufferFull, KindTransport},
		{"not started", ErrNotStarted, KindNotStarted},
		{"closed", ErrClosed, KindClosed},
		{"unknown", errors.New("boom"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Kind(tt.err))
		})
	}
}

func TestTimeoutErrorsShareParent(t *testing.T) {
	assert.ErrorIs(t, ErrSilenceTimeout, ErrTimeout)
	assert.ErrorIs(t, ErrConnectTimeout, ErrTimeout)
	assert.NotErrorIs(t, ErrSilenceTimeout, ErrConnectTimeout)
}

func TestTransportError(t *testing.T) {
	err := &TransportError{Op: "read", Err: io.ErrUnexpectedEOF}
	assert.Equal(t, "transport read: unexpected EOF", err.Error())
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestErrorKindString(t *testing.T) {
	assert.Equal(t, "TIMEOUT", KindTimeout.String())
	assert.Equal(t, "ADDRESS_IN_USE", KindAddressInUse.String())
	assert.Equal(t, "UNKNOWN", ErrorKind(99).String())
}
