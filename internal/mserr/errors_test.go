package mserr

import (
	"errors"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	base := errors.New("boom")
	err := Wrap(InvalidData, "peakdata.SpectralMap.load_from", "unsorted peaks in spectrum 3", base)

	if got := err.Error(); got == "" {
		t.Fatalf("expected non-empty error string")
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected Unwrap to expose the underlying cause")
	}
	if !Is(err, InvalidData) {
		t.Fatalf("expected Is(err, InvalidData) to be true")
	}
	if Is(err, NoSuccessor) {
		t.Fatalf("expected Is(err, NoSuccessor) to be false")
	}
}

func TestNewHasNoCause(t *testing.T) {
	err := New(NoSuccessor, "peakdata.SpectralMap.next_mz", "no successor in this spectrum")
	if err.Cause != nil {
		t.Fatalf("expected nil cause, got %v", err.Cause)
	}
	if err.Unwrap() != nil {
		t.Fatalf("expected Unwrap() to return nil")
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		InvalidArgument:          "InvalidArgument",
		MissingInformation:       "MissingInformation",
		InvalidData:              "InvalidData",
		ConversionError:          "ConversionError",
		NoSuccessor:              "NoSuccessor",
		FitQualityBelowThreshold: "FitQualityBelowThreshold",
		NotImplemented:           "NotImplemented",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
