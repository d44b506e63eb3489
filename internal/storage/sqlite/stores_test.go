package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/banshee-data/msflow/internal/consensus"
	"github.com/banshee-data/msflow/internal/featurefinder"
	"github.com/banshee-data/msflow/internal/mrmscore"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := db.MigrateUp(); err != nil {
		t.Fatalf("MigrateUp: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInsertAndGetFeatures(t *testing.T) {
	db := openTestDB(t)
	features := []featurefinder.Feature{
		{CentroidRT: 100, CentroidMZ: 500.25, Intensity: 20000, Charge: 1, Quality: 0.95},
		{CentroidRT: 105, CentroidMZ: 600.50, Intensity: 35000, Charge: 2, Quality: 0.9},
	}
	mapID, err := InsertFeatureMap(db.DB, "doc-1", 1000, features)
	if err != nil {
		t.Fatalf("InsertFeatureMap: %v", err)
	}
	if mapID == 0 {
		t.Fatalf("expected non-zero feature map id")
	}

	got, err := GetFeatures(db.DB, mapID)
	if err != nil {
		t.Fatalf("GetFeatures: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 features, got %d", len(got))
	}
	if got[0].Intensity != 35000 {
		t.Fatalf("expected features ordered by descending intensity, got %+v", got)
	}
}

func TestInsertConsensusMap(t *testing.T) {
	db := openTestDB(t)
	groups := []consensus.Group{
		{Members: []consensus.FeatureRef{
			{MapIndex: 0, FeatureIndex: 0, RT: 100, MZ: 500},
			{MapIndex: 1, FeatureIndex: 2, RT: 100.1, MZ: 500.01},
		}},
	}
	mapID, err := InsertConsensusMap(db.DB, 2000, groups)
	if err != nil {
		t.Fatalf("InsertConsensusMap: %v", err)
	}
	if mapID == 0 {
		t.Fatalf("expected non-zero consensus map id")
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM consensus_group_members`).Scan(&count); err != nil {
		t.Fatalf("count query: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 consensus group members persisted, got %d", count)
	}
}

func TestInsertMRMScore(t *testing.T) {
	db := openTestDB(t)
	comp := mrmscore.ScoreComponents{LibraryCorrelation: 0.9, OverallQuality: 0.85}
	id, err := InsertMRMScore(db.DB, "transition-group-1", 500.25, comp, true)
	if err != nil {
		t.Fatalf("InsertMRMScore: %v", err)
	}
	if id == 0 {
		t.Fatalf("expected non-zero mrm score id")
	}

	var passed int
	if err := db.QueryRow(`SELECT passed_qc FROM mrm_transition_groups WHERE id = ?`, id).Scan(&passed); err != nil {
		t.Fatalf("query passed_qc: %v", err)
	}
	if passed != 1 {
		t.Fatalf("expected passed_qc = 1, got %d", passed)
	}
}

func TestInsertFeatureMapDocUsesWrapperIdentifiers(t *testing.T) {
	db := openTestDB(t)
	fm := featurefinder.NewFeatureMap([]featurefinder.Feature{
		{CentroidRT: 50, CentroidMZ: 400, Intensity: 1000, Charge: 1, Quality: 0.8},
	}, featurefinder.DefaultParams())

	mapID, err := InsertFeatureMapDoc(db.DB, fm)
	if err != nil {
		t.Fatalf("InsertFeatureMapDoc: %v", err)
	}

	var documentID string
	if err := db.QueryRow(`SELECT document_id FROM feature_maps WHERE id = ?`, mapID).Scan(&documentID); err != nil {
		t.Fatalf("query document_id: %v", err)
	}
	if documentID != fm.DocumentID {
		t.Fatalf("expected persisted document_id %q, got %q", fm.DocumentID, documentID)
	}
}

func TestInsertConsensusMapDocPersistsMembers(t *testing.T) {
	db := openTestDB(t)
	cm, err := consensus.BuildMap([]consensus.FeatureRef{
		{MapIndex: 0, FeatureIndex: 0, RT: 100, MZ: 500, Intensity: 10},
		{MapIndex: 1, FeatureIndex: 0, RT: 100.1, MZ: 500.01, Intensity: 20},
	}, consensus.DefaultParams(), []string{"run-a", "run-b"})
	if err != nil {
		t.Fatalf("BuildMap: %v", err)
	}

	if _, err := InsertConsensusMapDoc(db.DB, cm); err != nil {
		t.Fatalf("InsertConsensusMapDoc: %v", err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM consensus_group_members`).Scan(&count); err != nil {
		t.Fatalf("count query: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 persisted members, got %d", count)
	}
}

func TestMigrateVersionAfterMigrateUp(t *testing.T) {
	db := openTestDB(t)
	version, dirty, err := db.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion: %v", err)
	}
	if dirty {
		t.Fatalf("expected clean migration state")
	}
	if version != 1 {
		t.Fatalf("expected version 1, got %d", version)
	}
}
