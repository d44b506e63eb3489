package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/banshee-data/msflow/internal/consensus"
	"github.com/banshee-data/msflow/internal/featurefinder"
	"github.com/banshee-data/msflow/internal/mrmscore"
)

// InsertFeatureMapDoc persists a featurefinder.FeatureMap, using its own
// generated DocumentID and CreatedAt rather than requiring the caller to
// supply them separately.
func InsertFeatureMapDoc(db *sql.DB, fm featurefinder.FeatureMap) (int64, error) {
	return InsertFeatureMap(db, fm.DocumentID, fm.CreatedAt.UnixNano(), fm.Features)
}

// InsertConsensusMapDoc persists a consensus.ConsensusMap's groups. The
// richer per-feature quality and bounding-box fields ConsensusMap adds over
// a bare []consensus.Group are recomputable from the persisted member rows
// at read time, so only the member geometry is stored.
func InsertConsensusMapDoc(db *sql.DB, cm consensus.ConsensusMap) (int64, error) {
	groups := make([]consensus.Group, 0, len(cm.Features))
	for _, f := range cm.Features {
		groups = append(groups, consensus.Group{Members: f.Members})
	}
	return InsertConsensusMap(db, cm.CreatedAt.UnixNano(), groups)
}

// InsertFeatureMap records a new feature map and every accepted feature in
// it, returning the new feature_maps row id. Mirrors InsertCluster's
// direct *sql.DB-parameter style (internal/lidar/track_store.go) rather
// than wrapping every call in a transaction-manager type.
func InsertFeatureMap(db *sql.DB, documentID string, createdAtUnixNanos int64, features []featurefinder.Feature) (int64, error) {
	result, err := db.Exec(
		`INSERT INTO feature_maps (document_id, created_at_unix_nanos) VALUES (?, ?)`,
		documentID, createdAtUnixNanos,
	)
	if err != nil {
		return 0, fmt.Errorf("insert feature map: %w", err)
	}
	mapID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read feature map id: %w", err)
	}

	for _, f := range features {
		if _, err := db.Exec(
			`INSERT INTO features (feature_map_id, centroid_rt, centroid_mz, intensity, charge, quality)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			mapID, f.CentroidRT, f.CentroidMZ, f.Intensity, f.Charge, f.Quality,
		); err != nil {
			return 0, fmt.Errorf("insert feature: %w", err)
		}
	}
	return mapID, nil
}

// GetFeatures returns every feature belonging to feature_map_id, ordered
// by descending intensity.
func GetFeatures(db *sql.DB, featureMapID int64) ([]featurefinder.Feature, error) {
	rows, err := db.Query(
		`SELECT centroid_rt, centroid_mz, intensity, charge, quality
		 FROM features WHERE feature_map_id = ? ORDER BY intensity DESC`,
		featureMapID,
	)
	if err != nil {
		return nil, fmt.Errorf("query features: %w", err)
	}
	defer rows.Close()

	var features []featurefinder.Feature
	for rows.Next() {
		var f featurefinder.Feature
		if err := rows.Scan(&f.CentroidRT, &f.CentroidMZ, &f.Intensity, &f.Charge, &f.Quality); err != nil {
			return nil, fmt.Errorf("scan feature: %w", err)
		}
		features = append(features, f)
	}
	return features, rows.Err()
}

// InsertConsensusMap records a new consensus map and every consensus group
// in it, returning the new consensus_maps row id.
func InsertConsensusMap(db *sql.DB, createdAtUnixNanos int64, groups []consensus.Group) (int64, error) {
	result, err := db.Exec(
		`INSERT INTO consensus_maps (created_at_unix_nanos) VALUES (?)`,
		createdAtUnixNanos,
	)
	if err != nil {
		return 0, fmt.Errorf("insert consensus map: %w", err)
	}
	mapID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read consensus map id: %w", err)
	}

	for _, g := range groups {
		groupResult, err := db.Exec(
			`INSERT INTO consensus_groups (consensus_map_id, centroid_rt, centroid_mz) VALUES (?, ?, ?)`,
			mapID, g.CentroidRT(), g.CentroidMZ(),
		)
		if err != nil {
			return 0, fmt.Errorf("insert consensus group: %w", err)
		}
		groupID, err := groupResult.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("read consensus group id: %w", err)
		}
		for _, m := range g.Members {
			if _, err := db.Exec(
				`INSERT INTO consensus_group_members (consensus_group_id, map_index, feature_index, rt, mz)
				 VALUES (?, ?, ?, ?, ?)`,
				groupID, m.MapIndex, m.FeatureIndex, m.RT, m.MZ,
			); err != nil {
				return 0, fmt.Errorf("insert consensus group member: %w", err)
			}
		}
	}
	return mapID, nil
}

// InsertMRMScore records one transition group's score against its
// pass/fail QC verdict.
func InsertMRMScore(db *sql.DB, nativeID string, precursorMZ float64, comp mrmscore.ScoreComponents, passed bool) (int64, error) {
	passedInt := 0
	if passed {
		passedInt = 1
	}
	result, err := db.Exec(
		`INSERT INTO mrm_transition_groups (
			native_id, precursor_mz, library_correlation, library_rmsd,
			coelution, peak_shape, elution_model_fit, intensity_score,
			log_snr, rt_score, overall_quality, passed_qc
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nativeID, precursorMZ, comp.LibraryCorrelation, comp.LibraryRMSD,
		comp.Coelution, comp.PeakShape, comp.ElutionModelFit, comp.IntensityScore,
		comp.LogSNR, comp.RTScore, comp.OverallQuality, passedInt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert mrm transition group score: %w", err)
	}
	return result.LastInsertId()
}
