package acquisition

import "github.com/banshee-data/msflow/internal/peakdata"

// ReplayProducer serves a fixed, pre-decoded sequence of spectra in
// order, implementing peakdata.SpectrumProducer. Built by ReadPCAPReplay
// (pcap build tag) or directly from a slice in tests.
type ReplayProducer struct {
	spectra []peakdata.Spectrum
	pos     int
}

// NewReplayProducer wraps an already-decoded spectrum sequence.
func NewReplayProducer(spectra []peakdata.Spectrum) *ReplayProducer {
	return &ReplayProducer{spectra: spectra}
}

// Next implements peakdata.SpectrumProducer.
func (r *ReplayProducer) Next() (peakdata.Spectrum, bool, error) {
	if r.pos >= len(r.spectra) {
		return peakdata.Spectrum{}, false, nil
	}
	s := r.spectra[r.pos]
	r.pos++
	return s, true, nil
}
