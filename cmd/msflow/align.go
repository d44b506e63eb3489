package main

import (
	"flag"
	"fmt"
	"math"
	"math/rand"

	"github.com/banshee-data/msflow/internal/rtmodel"
)

type alignAnchorsFile struct {
	Anchors []rtmodel.Anchor `json:"anchors"`
}

type alignResult struct {
	Kind            rtmodel.Kind     `json:"kind"`
	AnchorsUsed     int              `json:"anchors_used"`
	AnchorsDropped  int              `json:"anchors_dropped"`
	Predictions     []rtmodel.Anchor `json:"predictions"` // X is the input anchor's X, Y is Apply(X)
	ResidualRMS     float64          `json:"residual_rms"`
}

func runAlign(args []string) error {
	fs := flag.NewFlagSet("align", flag.ExitOnError)
	in := fs.String("in", "", "input anchor pairs JSON file (required)")
	out := fs.String("out", "", "output alignment summary JSON file (required)")
	kind := fs.String("kind", "linear", "transformation kind: none, linear, interpolated_linear, b_spline, lowess")
	outliers := fs.String("remove-outliers", "none", "outlier removal before fitting: none, chauvenet, ransac")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" || *out == "" {
		return fmt.Errorf("both -in and -out are required")
	}

	var f alignAnchorsFile
	if err := readJSON(*in, &f); err != nil {
		return fmt.Errorf("load anchors: %w", err)
	}

	filtered := f.Anchors
	switch *outliers {
	case "none":
	case "chauvenet":
		filtered = rtmodel.RemoveOutliersChauvenet(f.Anchors)
	case "ransac":
		filtered = rtmodel.RemoveOutliersRANSAC(f.Anchors, 200, 5.0, rand.New(rand.NewSource(1)))
	default:
		return fmt.Errorf("unknown -remove-outliers value %q", *outliers)
	}

	transform, err := rtmodel.Fit(rtmodel.Kind(*kind), filtered, rtmodel.ExtrapolateLinear)
	if err != nil {
		return fmt.Errorf("fit transformation: %w", err)
	}

	result := alignResult{
		Kind:           transform.Kind(),
		AnchorsUsed:    len(filtered),
		AnchorsDropped: len(f.Anchors) - len(filtered),
	}
	var sumSq float64
	for _, a := range filtered {
		predicted, err := transform.Apply(a.X)
		if err != nil {
			return fmt.Errorf("apply transformation: %w", err)
		}
		result.Predictions = append(result.Predictions, rtmodel.Anchor{X: a.X, Y: predicted})
		d := predicted - a.Y
		sumSq += d * d
	}
	if len(filtered) > 0 {
		result.ResidualRMS = math.Sqrt(sumSq / float64(len(filtered)))
	}

	fmt.Printf("align: fit %s over %d anchors (%d dropped), residual RMS %.4f\n",
		result.Kind, result.AnchorsUsed, result.AnchorsDropped, result.ResidualRMS)
	return writeJSON(*out, result)
}
