package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/banshee-data/msflow/internal/peakdata"
)

// peakStoreFile is the on-disk JSON shape find-features and extract-chrom
// read a PeakStore from: a flat list of spectra, order-independent (the
// loader sorts by RT the same way any other SpectrumProducer does). This
// is msflow's own interchange format, not an mzML/XML dialect.
type peakStoreFile struct {
	Spectra []peakdata.Spectrum `json:"spectra"`
}

type sliceProducer struct {
	spectra []peakdata.Spectrum
	pos     int
}

func (p *sliceProducer) Next() (peakdata.Spectrum, bool, error) {
	if p.pos >= len(p.spectra) {
		return peakdata.Spectrum{}, false, nil
	}
	s := p.spectra[p.pos]
	p.pos++
	return s, true, nil
}

// loadPeakStore reads a peakStoreFile from path and loads it into a fresh
// SpectralMap.
func loadPeakStore(path string) (*peakdata.SpectralMap, error) {
	var f peakStoreFile
	if err := readJSON(path, &f); err != nil {
		return nil, fmt.Errorf("load peak store: %w", err)
	}
	m := peakdata.NewSpectralMap()
	if err := m.LoadFrom(&sliceProducer{spectra: f.Spectra}); err != nil {
		return nil, fmt.Errorf("load peak store: %w", err)
	}
	return m, nil
}

func readJSON(path string, v interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(v)
}

func writeJSON(path string, v interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
