package main

import (
	"flag"
	"fmt"
	"math"

	"github.com/banshee-data/msflow/internal/mapalign"
	"github.com/banshee-data/msflow/internal/rtmodel"
)

type poseAlignCandidatesFile struct {
	Candidates []mapalign.CandidatePair `json:"candidates"`
}

type poseAlignResult struct {
	Scale          float64          `json:"scale"`
	Shift          float64          `json:"shift"`
	Identity       bool             `json:"identity"`
	AnchorsUsed    int              `json:"anchors_used"`
	Kind           rtmodel.Kind     `json:"kind"`
	Predictions    []rtmodel.Anchor `json:"predictions"` // X is the candidate's ReferenceRT, Y is Apply(X)
	ResidualRMS    float64          `json:"residual_rms"`
}

// runPoseAlign wires mapalign's pose-clustering MapAligner into the CLI:
// it loads candidate RT correspondences, votes a winning (scale, shift)
// pose via mapalign.Align, then refits the winning pose's anchors as an
// rtmodel.Transformation so downstream consumers get the same Apply/
// InverseApply interface every other alignment kind produces.
func runPoseAlign(args []string) error {
	fs := flag.NewFlagSet("posealign", flag.ExitOnError)
	in := fs.String("in", "", "input candidate pairs JSON file (required)")
	out := fs.String("out", "", "output alignment summary JSON file (required)")
	kind := fs.String("kind", "linear", "transformation kind to refit from the winning pose's anchors: none, linear, interpolated_linear, b_spline, lowess")
	scaleBin := fs.Float64("scale-bin", mapalign.DefaultParams().ScaleBinWidth, "pose-clustering scale histogram bin width")
	shiftBin := fs.Float64("shift-bin", mapalign.DefaultParams().ShiftBinWidth, "pose-clustering shift histogram bin width")
	minAnchors := fs.Int("min-anchors", mapalign.DefaultParams().MinAnchors, "minimum candidates required before attempting pose clustering")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" || *out == "" {
		return fmt.Errorf("both -in and -out are required")
	}

	var f poseAlignCandidatesFile
	if err := readJSON(*in, &f); err != nil {
		return fmt.Errorf("load candidates: %w", err)
	}

	params := mapalign.Params{ScaleBinWidth: *scaleBin, ShiftBinWidth: *shiftBin, MinAnchors: *minAnchors}
	alignment, err := mapalign.Align(f.Candidates, params)
	if err != nil {
		return fmt.Errorf("pose-cluster alignment: %w", err)
	}

	result := poseAlignResult{
		Scale:       alignment.Scale,
		Shift:       alignment.Shift,
		Identity:    alignment.Identity,
		AnchorsUsed: len(alignment.Anchors),
	}

	anchors := make([]rtmodel.Anchor, len(alignment.Anchors))
	for i, a := range alignment.Anchors {
		anchors[i] = rtmodel.Anchor{X: a.ReferenceRT, Y: a.OtherRT}
	}

	if len(anchors) >= 2 {
		transform, err := rtmodel.Fit(rtmodel.Kind(*kind), anchors, rtmodel.ExtrapolateLinear)
		if err != nil {
			return fmt.Errorf("fit transformation from winning pose anchors: %w", err)
		}
		result.Kind = transform.Kind()
		var sumSq float64
		for _, a := range anchors {
			predicted, err := transform.Apply(a.X)
			if err != nil {
				return fmt.Errorf("apply transformation: %w", err)
			}
			result.Predictions = append(result.Predictions, rtmodel.Anchor{X: a.X, Y: predicted})
			d := predicted - a.Y
			sumSq += d * d
		}
		if len(anchors) > 0 {
			result.ResidualRMS = math.Sqrt(sumSq / float64(len(anchors)))
		}
	}

	fmt.Printf("posealign: %d candidates -> scale %.6f shift %.4f (identity=%v, %d anchors), residual RMS %.4f\n",
		len(f.Candidates), result.Scale, result.Shift, result.Identity, result.AnchorsUsed, result.ResidualRMS)
	return writeJSON(*out, result)
}
