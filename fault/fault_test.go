package fault

import (
	"errors"
	"fmt"
	"testing"
)

func TestKind(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("%w: unsupported encoding %q", ErrConfiguration, "zip"), "configuration"},
		{fmt.Errorf("probe: %w", fmt.Errorf("%w: no driver", ErrPlatformUnavailable)), "platform-unavailable"},
		{fmt.Errorf("%w: truncated", ErrTransport), "transport"},
		{fmt.Errorf("%w: worker crashed", ErrDeviceFault), "device-fault"},
		{fmt.Errorf("%w: run before loadWeights", ErrSequencing), "sequencing"},
		{errors.New("plain"), ""},
		{nil, ""},
	}

	for _, tt := range cases {
		if got := Kind(tt.err); got != tt.want {
			t.Errorf("Kind(%v) = %q, erwartet %q", tt.err, got, tt.want)
		}
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(fmt.Errorf("%w: gpu", ErrPlatformUnavailable)) {
		t.Error("PlatformUnavailable sollte retryable sein")
	}
	if Retryable(fmt.Errorf("%w: bad layout", ErrConfiguration)) {
		t.Error("Configuration sollte nicht retryable sein")
	}
}
