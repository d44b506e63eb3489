// Command msflow is the composition root wiring PeakStore, the feature
// finder, alignment, consensus, chromatogram extraction, and MRM scoring
// into a set of flag-parsed subcommands, mirroring the teacher's flat
// main.go dispatch (pick a mode from os.Args, build one flag.FlagSet per
// mode, run, exit). It is deliberately thin: no GUI, no XML parsing, no
// search-engine adapter, only wiring.
package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/banshee-data/msflow/internal/obslog"
	"github.com/banshee-data/msflow/internal/paramtree"
	"github.com/banshee-data/msflow/internal/storage/sqlite"
	"github.com/banshee-data/msflow/internal/version"
)

func main() {
	obslog.SetLogger(func(format string, v ...interface{}) { fmt.Fprintf(os.Stderr, format+"\n", v...) })

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "find-features":
		err = runFindFeatures(os.Args[2:])
	case "align":
		err = runAlign(os.Args[2:])
	case "posealign":
		err = runPoseAlign(os.Args[2:])
	case "consensus":
		err = runConsensus(os.Args[2:])
	case "extract-chrom":
		err = runExtractChrom(os.Args[2:])
	case "score-mrm":
		err = runScoreMRM(os.Args[2:])
	case "version":
		fmt.Printf("msflow %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	case "-h", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "msflow: unknown subcommand %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "msflow %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: msflow <command> [flags]

commands:
  find-features   run the Seeder/Extender/ModelFitter pipeline over a PeakStore
  align           fit an RT transformation between two runs' anchor pairs
  posealign       pose-cluster candidate RT correspondences, then fit an RT transformation from the winning pose
  consensus       group aligned features into consensus features across runs
  extract-chrom   extract MRM/SWATH transition chromatograms from a PeakStore
  score-mrm       score extracted chromatograms against a spectral library
  version         print build information`)
}

// openStore opens (creating if necessary) the sqlite database at path and
// migrates it to the latest schema, the same open-then-migrate sequence
// every subcommand that persists results follows.
func openStore(path string) (*sqlite.DB, error) {
	if path == "" {
		return nil, nil
	}
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(); err != nil {
		return nil, err
	}
	return db, nil
}

func defaultSnapshot() paramtree.Snapshot {
	return paramtree.DefaultRegistry().Freeze()
}

func rawDB(db *sqlite.DB) *sql.DB {
	if db == nil {
		return nil
	}
	return db.DB
}
