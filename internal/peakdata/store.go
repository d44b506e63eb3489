package peakdata

import (
	"sort"

	"github.com/banshee-data/msflow/internal/mserr"
	"github.com/google/uuid"
)

// SpectralMap (PeakStore, spec §4.1) owns an ordered collection of
// spectra by RT plus an optional collection of chromatograms, and
// caches min/max RT, m/z, and intensity for fast summaries.
//
// Loading follows the teacher's frame-builder idiom: accept an
// unordered producer stream, buffer it, then sort once -- rather than
// maintaining the sortedness incrementally on every insert.
type SpectralMap struct {
	DocumentID string
	Spectra    []Spectrum // sorted ascending by RT after load_from
	Chroms     []Chromatogram

	minRT, maxRT               float64
	minMZ, maxMZ               float64
	minIntensity, maxIntensity float64
	ranged                     bool
}

// NewSpectralMap allocates an empty map stamped with a fresh document
// identifier, so every PeakStore loaded in a run can be traced back
// through FeatureMap/ConsensusMap records that cite it.
func NewSpectralMap() *SpectralMap {
	return &SpectralMap{DocumentID: uuid.NewString()}
}

// SpectrumProducer is the external-collaborator interface a SpectralMap
// ingests from (spec §6: "delivered in any order, must be buffered and
// sorted before the core uses it"). internal/acquisition provides two
// concrete producers: a live serial link and a pcap replay.
type SpectrumProducer interface {
	// Next returns the next spectrum, or ok=false when the stream is
	// exhausted. err is non-nil only on a genuine read failure.
	Next() (spectrum Spectrum, ok bool, err error)
}

// LoadFrom drains producer, validates every spectrum is m/z-sorted, and
// stores the result stable-sorted by RT (spec §4.1's load_from).
// Fails with the InvalidData error Spectrum.Validate returns for the
// first invalid spectrum (peaks not strictly ascending by m/z, or an MSn
// spectrum without a precursor); the map is not modified in that case.
func (m *SpectralMap) LoadFrom(producer SpectrumProducer) error {
	var spectra []Spectrum
	for {
		s, ok, err := producer.Next()
		if err != nil {
			return mserr.Wrap(mserr.InvalidData, "peakdata.SpectralMap.LoadFrom", "producer read failed", err)
		}
		if !ok {
			break
		}
		if err := s.Validate(); err != nil {
			return err
		}
		spectra = append(spectra, s)
	}

	sort.SliceStable(spectra, func(i, j int) bool { return spectra[i].RT < spectra[j].RT })

	m.Spectra = spectra
	m.UpdateRanges()
	return nil
}

// SpectraByRT returns the half-open index range [first, last) of spectra
// whose RT lies in [rtLo, rtHi). On an empty map this returns (0, 0),
// an empty range, never an error (spec §4.1's failure semantics).
func (m *SpectralMap) SpectraByRT(rtLo, rtHi float64) (first, last int) {
	first = sort.Search(len(m.Spectra), func(i int) bool { return m.Spectra[i].RT >= rtLo })
	last = sort.Search(len(m.Spectra), func(i int) bool { return m.Spectra[i].RT >= rtHi })
	return first, last
}

// NextRT returns the index of the spectrum immediately following idx in
// RT order (which may share idx's RT), or fails with NoSuccessor at the
// right boundary.
func (m *SpectralMap) NextRT(idx int) (int, error) {
	if idx < 0 || idx >= len(m.Spectra) {
		return -1, mserr.New(mserr.NoSuccessor, "peakdata.SpectralMap.NextRT", "index out of range")
	}
	if idx+1 >= len(m.Spectra) {
		return -1, mserr.New(mserr.NoSuccessor, "peakdata.SpectralMap.NextRT", "already at last spectrum")
	}
	return idx + 1, nil
}

// PrevRT returns the index of the spectrum immediately preceding idx,
// or fails with NoSuccessor at the left boundary.
func (m *SpectralMap) PrevRT(idx int) (int, error) {
	if idx < 0 || idx >= len(m.Spectra) {
		return -1, mserr.New(mserr.NoSuccessor, "peakdata.SpectralMap.PrevRT", "index out of range")
	}
	if idx-1 < 0 {
		return -1, mserr.New(mserr.NoSuccessor, "peakdata.SpectralMap.PrevRT", "already at first spectrum")
	}
	return idx - 1, nil
}

// UpdateRanges recomputes the cached min/max RT, m/z, and intensity over
// the current contents (spec §4.1's updateRanges).
func (m *SpectralMap) UpdateRanges() {
	m.ranged = false
	if len(m.Spectra) == 0 {
		return
	}
	first := true
	for _, s := range m.Spectra {
		if first {
			m.minRT, m.maxRT = s.RT, s.RT
		} else {
			if s.RT < m.minRT {
				m.minRT = s.RT
			}
			if s.RT > m.maxRT {
				m.maxRT = s.RT
			}
		}
		first = false
		for _, p := range s.Peaks {
			if !m.ranged {
				m.minMZ, m.maxMZ = p.MZ, p.MZ
				m.minIntensity, m.maxIntensity = p.Intensity, p.Intensity
				m.ranged = true
			} else {
				if p.MZ < m.minMZ {
					m.minMZ = p.MZ
				}
				if p.MZ > m.maxMZ {
					m.maxMZ = p.MZ
				}
				if p.Intensity < m.minIntensity {
					m.minIntensity = p.Intensity
				}
				if p.Intensity > m.maxIntensity {
					m.maxIntensity = p.Intensity
				}
			}
		}
	}
}

// Ranges reports the cached min/max RT, m/z and intensity. ok is false
// if UpdateRanges has never found a peak (e.g. an empty map, or a map
// whose spectra have no peaks).
func (m *SpectralMap) Ranges() (minRT, maxRT, minMZ, maxMZ, minIntensity, maxIntensity float64, ok bool) {
	return m.minRT, m.maxRT, m.minMZ, m.maxMZ, m.minIntensity, m.maxIntensity, m.ranged
}
