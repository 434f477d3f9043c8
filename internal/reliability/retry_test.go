package reliability

import (
	"testing"
	"time"
)

func TestRetryableStatus(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{200, false},
		{400, false},
		{404, false},
		{429, true},
		{500, true},
		{502, true},
		{503, true},
		{504, true},
	}
	for _, tc := range cases {
		if got := RetryableStatus(tc.code); got != tc.want {
			t.Errorf("RetryableStatus(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	base := 100 * time.Millisecond
	cap := time.Second

	if got := Backoff(0, base, cap); got != base {
		t.Errorf("Backoff(0) = %v, want %v", got, base)
	}
	if got := Backoff(1, base, cap); got != 200*time.Millisecond {
		t.Errorf("Backoff(1) = %v, want 200ms", got)
	}
	if got := Backoff(10, base, cap); got != cap {
		t.Errorf("Backoff(10) = %v, want cap %v", got, cap)
	}
}
