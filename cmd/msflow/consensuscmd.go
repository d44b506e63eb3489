package main

import (
	"flag"
	"fmt"
	"strings"

	"github.com/banshee-data/msflow/internal/consensus"
	"github.com/banshee-data/msflow/internal/featurefinder"
	"github.com/banshee-data/msflow/internal/storage/sqlite"
)

func runConsensus(args []string) error {
	fs := flag.NewFlagSet("consensus", flag.ExitOnError)
	in := fs.String("in", "", "comma-separated list of feature map JSON files, one per run (required, at least 2)")
	out := fs.String("out", "", "output consensus map JSON file (required)")
	dbPath := fs.String("db", "", "optional sqlite database to persist the consensus map into")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" || *out == "" {
		return fmt.Errorf("both -in and -out are required")
	}

	paths := strings.Split(*in, ",")
	if len(paths) < 2 {
		return fmt.Errorf("-in must list at least 2 feature map files to build consensus across")
	}

	var refs []consensus.FeatureRef
	labels := make([]string, len(paths))
	for mapIndex, path := range paths {
		var fm featurefinder.FeatureMap
		if err := readJSON(path, &fm); err != nil {
			return fmt.Errorf("load feature map %q: %w", path, err)
		}
		labels[mapIndex] = fm.DocumentID
		for featureIndex, f := range fm.Features {
			refs = append(refs, consensus.FeatureRef{
				MapIndex:     mapIndex,
				FeatureIndex: featureIndex,
				RT:           f.CentroidRT,
				MZ:           f.CentroidMZ,
				Intensity:    f.Intensity,
			})
		}
	}

	cm, err := consensus.BuildMap(refs, consensus.DefaultParams(), labels)
	if err != nil {
		return fmt.Errorf("build consensus map: %w", err)
	}
	fmt.Printf("consensus: linked %d features across %d maps into %d consensus features (document %s)\n",
		len(refs), len(paths), len(cm.Features), cm.DocumentID)

	if err := writeJSON(*out, cm); err != nil {
		return fmt.Errorf("write consensus map: %w", err)
	}

	if *dbPath != "" {
		db, err := openStore(*dbPath)
		if err != nil {
			return err
		}
		defer db.Close()
		if _, err := sqlite.InsertConsensusMapDoc(rawDB(db), cm); err != nil {
			return fmt.Errorf("persist consensus map: %w", err)
		}
	}
	return nil
}
