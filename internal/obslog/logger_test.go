package obslog

import "testing"

func TestCaptureAndRestore(t *testing.T) {
	lines := Capture(func() {
		Logf("seed %d rejected: %s", 7, "below intensity cutoff")
	})

	if len(lines) != 1 {
		t.Fatalf("expected 1 captured line, got %d", len(lines))
	}
	want := "seed 7 rejected: below intensity cutoff"
	if lines[0] != want {
		t.Errorf("got %q, want %q", lines[0], want)
	}

	// Logger should be restored to the default after Capture returns.
	if Logf == nil {
		t.Fatalf("expected Logf to be restored, got nil")
	}
}

func TestSetLoggerNilIsNoOp(t *testing.T) {
	SetLogger(nil)
	defer SetLogger(nil) // reset to a known no-op state for other tests
	Logf("this should not panic") // just exercising the no-op path
}
