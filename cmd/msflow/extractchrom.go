package main

import (
	"flag"
	"fmt"

	"github.com/banshee-data/msflow/internal/chromext"
)

type transitionsFile struct {
	Transitions []chromext.Transition `json:"transitions"`
}

func runExtractChrom(args []string) error {
	fs := flag.NewFlagSet("extract-chrom", flag.ExitOnError)
	in := fs.String("in", "", "input peak store JSON file (required)")
	transitionsPath := fs.String("transitions", "", "input transition list JSON file (required)")
	out := fs.String("out", "", "output chromatogram list JSON file (required)")
	shape := fs.String("shape", "tophat", "extraction kernel: tophat or bartlett")
	rtWindow := fs.Float64("rt-window", -1, "RT extraction window in seconds around each transition's normalized RT; <= 0 disables the filter")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" || *transitionsPath == "" || *out == "" {
		return fmt.Errorf("-in, -transitions, and -out are all required")
	}

	store, err := loadPeakStore(*in)
	if err != nil {
		return err
	}

	var tf transitionsFile
	if err := readJSON(*transitionsPath, &tf); err != nil {
		return fmt.Errorf("load transitions: %w", err)
	}

	params := chromext.DefaultParams()
	params.Shape = chromext.ExtractionShape(*shape)
	params.RTWindow = *rtWindow

	chroms, err := chromext.Extract(store, tf.Transitions, params)
	if err != nil {
		return fmt.Errorf("extract chromatograms: %w", err)
	}
	fmt.Printf("extract-chrom: extracted %d chromatograms from %q\n", len(chroms), *in)
	return writeJSON(*out, chroms)
}
