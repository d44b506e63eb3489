package paramtree

import "testing"

func TestRegisterDefaultAndOverride(t *testing.T) {
	tree := New()
	tree.Register(Entry{Path: "extender:tolerance_rt", Default: FloatValue(1.5), Description: "RT kernel width"})

	snap := tree.Freeze()
	if got := snap.Float("extender:tolerance_rt", 0); got != 1.5 {
		t.Fatalf("expected default 1.5, got %v", got)
	}

	if err := tree.Set("extender:tolerance_rt", FloatValue(2.0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap2 := tree.Freeze()
	if got := snap2.Float("extender:tolerance_rt", 0); got != 2.0 {
		t.Fatalf("expected overridden 2.0, got %v", got)
	}

	// The first snapshot must not observe the later mutation.
	if got := snap.Float("extender:tolerance_rt", 0); got != 1.5 {
		t.Fatalf("snapshot was not frozen: got %v", got)
	}
}

func TestSetUnknownPath(t *testing.T) {
	tree := New()
	if err := tree.Set("does:not:exist", FloatValue(1)); err == nil {
		t.Fatalf("expected error for unregistered path")
	}
}

func TestSetKindMismatch(t *testing.T) {
	tree := New()
	tree.Register(Entry{Path: "alignment:kind", Default: StringValue("linear"), Allowed: []string{"none", "linear", "interpolated", "b-spline", "lowess"}})
	if err := tree.Set("alignment:kind", IntValue(1)); err == nil {
		t.Fatalf("expected kind-mismatch error")
	}
}

func TestSetDisallowedValue(t *testing.T) {
	tree := New()
	tree.Register(Entry{Path: "alignment:kind", Default: StringValue("linear"), Allowed: []string{"none", "linear", "interpolated", "b-spline", "lowess"}})
	if err := tree.Set("alignment:kind", StringValue("quadratic")); err == nil {
		t.Fatalf("expected error for disallowed value")
	}
}

func TestFallbackWhenUnset(t *testing.T) {
	snap := New().Freeze()
	if got := snap.Float("missing", 42); got != 42 {
		t.Fatalf("expected fallback 42, got %v", got)
	}
	if got := snap.Int("missing", 7); got != 7 {
		t.Fatalf("expected fallback 7, got %v", got)
	}
	if got := snap.String("missing", "x"); got != "x" {
		t.Fatalf("expected fallback x, got %v", got)
	}
	if got := snap.Bool("missing", true); got != true {
		t.Fatalf("expected fallback true, got %v", got)
	}
}

func TestParseCSVFloat64s(t *testing.T) {
	vals, err := ParseCSVFloat64s("1.0, 2.5,3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []float64{1.0, 2.5, 3.0}
	if len(vals) != len(want) {
		t.Fatalf("expected %d values, got %d", len(want), len(vals))
	}
	for i := range want {
		if vals[i] != want[i] {
			t.Errorf("index %d: got %v want %v", i, vals[i], want[i])
		}
	}

	if vals, err := ParseCSVFloat64s(""); err != nil || vals != nil {
		t.Fatalf("expected nil, nil for empty input, got %v, %v", vals, err)
	}

	if _, err := ParseCSVFloat64s("1.0,nope"); err == nil {
		t.Fatalf("expected error for invalid float")
	}
}

func TestDefaultRegistryRegistersEverySeederStagePath(t *testing.T) {
	snap := DefaultRegistry().Freeze()
	for _, path := range []string{
		"extender:tolerance_rt", "extender:tolerance_mz", "extender:priority_thr",
		"extender:intensity_factor", "extender:min_intensity_contrib",
		"gauss:sigma", "sg:frame_size", "sg:order",
		"isotope:stdev", "isotope:max_isotope",
		"alignment:kind", "alignment:extrapolation", "alignment:rsq_limit", "alignment:coverage",
		"consensus:tol_rt", "consensus:tol_mz",
		"chrom:mz_tol", "chrom:rt_window",
		"scorer:min_matched_peaks",
	} {
		if !contains(snap.Paths(), path) {
			t.Errorf("expected DefaultRegistry to register %q", path)
		}
	}
}

func TestDefaultRegistryAlignmentKindRejectsUnknownValue(t *testing.T) {
	tree := DefaultRegistry()
	if err := tree.Set("alignment:kind", StringValue("not-a-kind")); err == nil {
		t.Fatalf("expected error setting alignment:kind to an unlisted value")
	}
	if err := tree.Set("alignment:kind", StringValue("lowess")); err != nil {
		t.Fatalf("unexpected error setting alignment:kind to an allowed value: %v", err)
	}
}
