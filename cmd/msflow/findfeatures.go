package main

import (
	"flag"
	"fmt"

	"github.com/banshee-data/msflow/internal/featurefinder"
	"github.com/banshee-data/msflow/internal/peakdata"
	"github.com/banshee-data/msflow/internal/storage/sqlite"
)

func runFindFeatures(args []string) error {
	fs := flag.NewFlagSet("find-features", flag.ExitOnError)
	in := fs.String("in", "", "input peak store JSON file (required)")
	out := fs.String("out", "", "output feature map JSON file (required)")
	dbPath := fs.String("db", "", "optional sqlite database to persist the feature map into")
	intensityThreshold := fs.Float64("intensity-threshold", 0, "override the seeder intensity threshold (0 keeps featurefinder's default)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" || *out == "" {
		return fmt.Errorf("both -in and -out are required")
	}

	store, err := loadPeakStore(*in)
	if err != nil {
		return err
	}
	grid, _ := peakdata.NewProfileGrid(store)

	params := featurefinder.ParamsFromSnapshot(defaultSnapshot())
	if *intensityThreshold > 0 {
		params.IntensityThreshold = *intensityThreshold
	}

	features, err := featurefinder.Run(grid, params)
	if err != nil {
		return fmt.Errorf("run feature finder: %w", err)
	}
	fm := featurefinder.NewFeatureMap(features, params)
	fmt.Printf("find-features: accepted %d features from %q into document %s\n", len(fm.Features), *in, fm.DocumentID)

	if err := writeJSON(*out, fm); err != nil {
		return fmt.Errorf("write feature map: %w", err)
	}

	if *dbPath != "" {
		db, err := openStore(*dbPath)
		if err != nil {
			return err
		}
		defer db.Close()
		if _, err := sqlite.InsertFeatureMapDoc(rawDB(db), fm); err != nil {
			return fmt.Errorf("persist feature map: %w", err)
		}
	}
	return nil
}
