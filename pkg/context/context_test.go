package context

import (
	"errors"
	"testing"
	"time"
)

func TestSleep(t *testing.T) {
	start := time.Now()
	if err := Sleep(Bg(), 20*time.Millisecond); err != nil {
		t.Fatalf("Sleep: %v", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Errorf("Sleep returned early")
	}
	c, cancel := Cancel(Bg())
	cancel()
	start = time.Now()
	if err := Sleep(c, time.Minute); !errors.Is(err, Canceled) {
		t.Errorf("Sleep on cancelled context returned %v; want context.Canceled", err)
	}
	if time.Since(start) > time.Second {
		t.Errorf("Sleep ignored cancellation")
	}
}
