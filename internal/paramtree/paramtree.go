// Package paramtree re-expresses the OpenMS colon-separated Param tree
// (spec §9) as a dotted-path parameter store with typed defaults and a
// frozen Snapshot type that stages receive instead of the mutable tree
// (spec §5: "no stage mutates its parameters").
//
// The shape follows internal/config.TuningConfig in the teacher repo:
// a struct of named, independently-defaulted values, plus a CSV float
// parsing helper modeled on internal/lidar/sweep/math.go. The package has
// no range-parsing helper.
package paramtree

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Value is a tagged value in the parameter tree: exactly one of the
// fields is meaningful, selected by Kind.
type Value struct {
	Kind   ValueKind
	Float  float64
	Int    int
	Str    string
	Bool   bool
	Floats []float64
	Ints   []int
	Strs   []string
}

// ValueKind tags the active field of a Value.
type ValueKind int

const (
	KindEmpty ValueKind = iota
	KindFloat
	KindInt
	KindString
	KindBool
	KindFloatList
	KindIntList
	KindStringList
)

func FloatValue(v float64) Value  { return Value{Kind: KindFloat, Float: v} }
func IntValue(v int) Value        { return Value{Kind: KindInt, Int: v} }
func StringValue(v string) Value  { return Value{Kind: KindString, Str: v} }
func BoolValue(v bool) Value      { return Value{Kind: KindBool, Bool: v} }
func FloatListValue(v []float64) Value { return Value{Kind: KindFloatList, Floats: append([]float64(nil), v...)} }

// Entry describes one parameter: its default, allowed values (optional),
// and a human-readable description, mirroring the OpenMS Param schema
// (type, default, allowed values, description) called for in spec §9.
type Entry struct {
	Path        string
	Default     Value
	Description string
	// Allowed restricts string-valued parameters to an enumerated set
	// (e.g. "alignment:kind" -> {none, linear, interpolated, b-spline, lowess}).
	Allowed []string
}

// Tree is a mutable, named collection of parameter entries. A pipeline
// builds a Tree once at startup (registering every stage's parameters),
// then calls Freeze to hand stages an immutable Snapshot.
type Tree struct {
	entries map[string]Entry
	values  map[string]Value
}

// New creates an empty parameter tree.
func New() *Tree {
	return &Tree{
		entries: make(map[string]Entry),
		values:  make(map[string]Value),
	}
}

// Register adds an entry with its default value. Re-registering the same
// path overwrites the entry (later registration wins), matching the
// teacher's EmptyTuningConfig + partial-JSON-overlay behavior.
func (t *Tree) Register(e Entry) {
	t.entries[e.Path] = e
	if _, set := t.values[e.Path]; !set {
		t.values[e.Path] = e.Default
	}
}

// Set overrides the value at path. Returns an error if path was never
// registered or if v's Kind doesn't match the registered default's Kind.
func (t *Tree) Set(path string, v Value) error {
	e, ok := t.entries[path]
	if !ok {
		return fmt.Errorf("paramtree: unknown path %q", path)
	}
	if e.Default.Kind != v.Kind {
		return fmt.Errorf("paramtree: %q expects kind %d, got %d", path, e.Default.Kind, v.Kind)
	}
	if v.Kind == KindString && len(e.Allowed) > 0 && !contains(e.Allowed, v.Str) {
		return fmt.Errorf("paramtree: %q: value %q not among allowed values %v", path, v.Str, e.Allowed)
	}
	t.values[path] = v
	return nil
}

func contains(xs []string, x string) bool {
	for _, s := range xs {
		if s == x {
			return true
		}
	}
	return false
}

// Freeze produces an immutable snapshot of the current values. Stages
// hold only a Snapshot, never the Tree, so they cannot mutate shared
// parameter state (spec §5).
func (t *Tree) Freeze() Snapshot {
	cp := make(map[string]Value, len(t.values))
	for k, v := range t.values {
		cp[k] = v
	}
	return Snapshot{values: cp}
}

// Snapshot is a read-only, independently-held copy of parameter values.
type Snapshot struct {
	values map[string]Value
}

func (s Snapshot) Float(path string, fallback float64) float64 {
	if v, ok := s.values[path]; ok && v.Kind == KindFloat {
		return v.Float
	}
	return fallback
}

func (s Snapshot) Int(path string, fallback int) int {
	if v, ok := s.values[path]; ok && v.Kind == KindInt {
		return v.Int
	}
	return fallback
}

func (s Snapshot) String(path string, fallback string) string {
	if v, ok := s.values[path]; ok && v.Kind == KindString {
		return v.Str
	}
	return fallback
}

func (s Snapshot) Bool(path string, fallback bool) bool {
	if v, ok := s.values[path]; ok && v.Kind == KindBool {
		return v.Bool
	}
	return fallback
}

func (s Snapshot) FloatList(path string) []float64 {
	if v, ok := s.values[path]; ok && v.Kind == KindFloatList {
		return append([]float64(nil), v.Floats...)
	}
	return nil
}

// Paths returns every registered path in sorted order, for debug dumps.
func (s Snapshot) Paths() []string {
	out := make([]string, 0, len(s.values))
	for k := range s.values {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// MarshalJSON serializes the snapshot as a flat path->value map, with
// values rendered in their natural JSON shape. internal/storage/sqlite
// does not store it; no table holds parameter snapshots.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(s.values))
	for k, v := range s.values {
		switch v.Kind {
		case KindFloat:
			out[k] = v.Float
		case KindInt:
			out[k] = v.Int
		case KindString:
			out[k] = v.Str
		case KindBool:
			out[k] = v.Bool
		case KindFloatList:
			out[k] = v.Floats
		case KindIntList:
			out[k] = v.Ints
		case KindStringList:
			out[k] = v.Strs
		default:
			out[k] = nil
		}
	}
	return json.Marshal(out)
}

// DefaultRegistry builds a Tree pre-registered with every named parameter
// the pipeline stages consult, each at the commonly used default named in
// its own package's DefaultXConfig/DefaultParams constructor. Callers that
// want to override a handful of values for one run should call
// DefaultRegistry(), then Set the paths they care about, then Freeze.
func DefaultRegistry() *Tree {
	t := New()
	for _, e := range []Entry{
		{Path: "extender:tolerance_rt", Default: FloatValue(2.0), Description: "RT kernel width for extension priority"},
		{Path: "extender:tolerance_mz", Default: FloatValue(0.5), Description: "m/z kernel width for extension priority"},
		{Path: "extender:dist_rt_up", Default: FloatValue(5.0), Description: "hard cutoff above the running centroid's RT"},
		{Path: "extender:dist_rt_down", Default: FloatValue(5.0), Description: "hard cutoff below the running centroid's RT"},
		{Path: "extender:dist_mz_up", Default: FloatValue(6.0), Description: "hard cutoff above the running centroid's m/z"},
		{Path: "extender:dist_mz_down", Default: FloatValue(2.0), Description: "hard cutoff below the running centroid's m/z"},
		{Path: "extender:priority_thr", Default: FloatValue(0), Description: "minimum priority a candidate must clear to be queued"},
		{Path: "extender:intensity_factor", Default: FloatValue(0.03), Description: "fraction of the seed's intensity below which extension stops"},
		{Path: "extender:min_intensity_contrib", Default: FloatValue(0.01), Description: "minimum fractional contribution a point must add to the running centroid"},
		{Path: "gauss:sigma", Default: FloatValue(1.0), Description: "Gaussian smoothing kernel standard deviation"},
		{Path: "sg:frame_size", Default: IntValue(11), Description: "Savitzky-Golay window size, must be odd"},
		{Path: "sg:order", Default: IntValue(4), Description: "Savitzky-Golay polynomial order"},
		{Path: "isotope:stdev", Default: FloatValue(0.05), Description: "isotope centroid matching tolerance in m/z"},
		{Path: "isotope:max_isotope", Default: IntValue(10), Description: "highest isotope peak index considered in the averagine envelope"},
		{Path: "alignment:kind", Default: StringValue("linear"), Allowed: []string{"none", "linear", "interpolated", "b-spline", "lowess"}, Description: "retention-time transformation model"},
		{Path: "alignment:extrapolation", Default: StringValue("linear"), Allowed: []string{"linear", "constant"}, Description: "behavior outside the fitted anchor range"},
		{Path: "alignment:rsq_limit", Default: FloatValue(0.9), Description: "minimum fit R^2 for a transformation to be accepted"},
		{Path: "alignment:coverage", Default: FloatValue(0.5), Description: "minimum fraction of the RT range the anchors must span"},
		{Path: "consensus:tol_rt", Default: FloatValue(15), Description: "max RT distance for a consensus match"},
		{Path: "consensus:tol_mz", Default: FloatValue(0.05), Description: "max m/z distance for a consensus match"},
		{Path: "chrom:mz_tol", Default: FloatValue(0.5), Description: "m/z extraction half-width for chromatogram traces"},
		{Path: "chrom:rt_window", Default: FloatValue(-1), Description: "RT window full width for chromatogram extraction; negative disables the RT filter"},
		{Path: "scorer:min_matched_peaks", Default: IntValue(3), Description: "minimum number of transitions required to score a group"},
	} {
		t.Register(e)
	}
	return t
}

// ParseCSVFloat64s parses a comma-separated list of float64 values,
// skipping empty items. No command in cmd/msflow calls it. Mirrors
// internal/lidar/sweep/math.go's ParseCSVFloat64s, including its
// DoS-guard on the number of values.
func ParseCSVFloat64s(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	const maxValues = 10000
	parts := strings.Split(s, ",")
	if len(parts) > maxValues {
		return nil, fmt.Errorf("too many comma-separated values: maximum %d allowed, got %d", maxValues, len(parts))
	}
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}
