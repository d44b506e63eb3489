package main

import (
	"flag"
	"fmt"

	"github.com/banshee-data/msflow/internal/mrmscore"
	"github.com/banshee-data/msflow/internal/peakdata"
	"github.com/banshee-data/msflow/internal/storage/sqlite"
)

type libraryFile struct {
	Library []mrmscore.LibraryIntensity `json:"library"`
}

type chromatogramsFile struct {
	Chromatograms []peakdata.Chromatogram `json:"chromatograms"`
}

func runScoreMRM(args []string) error {
	fs := flag.NewFlagSet("score-mrm", flag.ExitOnError)
	chromPath := fs.String("chrom", "", "input chromatogram list JSON file, all from one transition group (required)")
	libraryPath := fs.String("library", "", "input library intensity JSON file (required)")
	groupID := fs.String("group-id", "", "native id to record this group's score under; defaults to the first chromatogram's NativeID")
	out := fs.String("out", "", "output score components JSON file (required)")
	dbPath := fs.String("db", "", "optional sqlite database to persist the score into")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *chromPath == "" || *libraryPath == "" || *out == "" {
		return fmt.Errorf("-chrom, -library, and -out are all required")
	}

	var cf chromatogramsFile
	if err := readJSON(*chromPath, &cf); err != nil {
		return fmt.Errorf("load chromatograms: %w", err)
	}
	var lf libraryFile
	if err := readJSON(*libraryPath, &lf); err != nil {
		return fmt.Errorf("load library: %w", err)
	}

	comp, err := mrmscore.Score(cf.Chromatograms, lf.Library, mrmscore.DefaultScoreWeights())
	if err != nil {
		return fmt.Errorf("score transition group: %w", err)
	}
	thresholds := mrmscore.DefaultQCThresholds()
	passed := comp.Passes(thresholds)

	nativeID := *groupID
	var precursorMZ float64
	if len(cf.Chromatograms) > 0 {
		precursorMZ = cf.Chromatograms[0].PrecursorMZ
		if nativeID == "" {
			nativeID = cf.Chromatograms[0].NativeID
		}
	}

	fmt.Printf("score-mrm: group %q overall_quality=%.4f passed_qc=%v\n", nativeID, comp.OverallQuality, passed)

	if err := writeJSON(*out, struct {
		mrmscore.ScoreComponents
		PassedQC bool `json:"passed_qc"`
	}{comp, passed}); err != nil {
		return fmt.Errorf("write score: %w", err)
	}

	if *dbPath != "" {
		db, err := openStore(*dbPath)
		if err != nil {
			return err
		}
		defer db.Close()
		if _, err := sqlite.InsertMRMScore(rawDB(db), nativeID, precursorMZ, comp, passed); err != nil {
			return fmt.Errorf("persist score: %w", err)
		}
	}
	return nil
}
