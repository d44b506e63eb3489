// Package acquisition provides the external-collaborator producers that
// feed a peakdata.SpectralMap's load_from: a live instrument control-link
// reader over a serial port, and a deterministic PCAP replay path for
// testing against captured network traffic.
//
// Neither producer parses a standard instrument file format -- that is
// explicitly out of scope -- they only decode the minimal line-oriented
// wire framing the instrument's control link itself emits.
//
// The port wrapper and event-channel/command-channel pairing follow
// root serial.go's RadarPort: a thin struct around go.bug.st/serial's
// Port, with a background Monitor loop multiplexing reads against
// outbound commands via select.
package acquisition

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/banshee-data/msflow/internal/mserr"
	"github.com/banshee-data/msflow/internal/obslog"
	"github.com/banshee-data/msflow/internal/peakdata"
	"go.bug.st/serial"
)

// InstrumentPort wraps a serial connection to a mass spectrometer's
// control link, exposing decoded Spectrum values on a channel while
// allowing commands (e.g. method start/stop) to be sent concurrently.
type InstrumentPort struct {
	serial.Port
	spectra  chan decodedSpectrum
	commands chan string
}

type decodedSpectrum struct {
	spectrum peakdata.Spectrum
	err      error
}

// OpenInstrumentPort opens portName at the given baud rate for 8N1
// communication, the framing the instrument's control link uses.
func OpenInstrumentPort(portName string, baudRate int) (*InstrumentPort, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, mserr.Wrap(mserr.InvalidArgument, "acquisition.OpenInstrumentPort", "failed to open serial port", err)
	}
	return &InstrumentPort{
		Port:     port,
		spectra:  make(chan decodedSpectrum),
		commands: make(chan string),
	}, nil
}

// SendCommand queues a command string (e.g. "START", "STOP") for writing
// to the instrument by the Monitor loop.
func (p *InstrumentPort) SendCommand(command string) {
	p.commands <- command
}

// Monitor reads lines from the port, decodes each into a Spectrum, and
// delivers it on the internal channel consumed by Next, until ctx is
// done or the port closes. Commands queued via SendCommand are written
// out between reads -- the same for-select multiplexing pattern as
// RadarPort.Monitor in root serial.go.
func (p *InstrumentPort) Monitor(ctx context.Context) error {
	defer p.Port.Close()
	scanner := bufio.NewScanner(p.Port)

	for {
		select {
		case <-ctx.Done():
			close(p.spectra)
			return nil
		case command := <-p.commands:
			if _, err := p.Port.Write([]byte(command + "\n")); err != nil {
				obslog.Logf("acquisition: error writing command to instrument port: %v", err)
			}
		default:
			if !scanner.Scan() {
				close(p.spectra)
				return scanner.Err()
			}
			s, err := decodeLine(scanner.Text())
			p.spectra <- decodedSpectrum{spectrum: s, err: err}
		}
	}
}

// Next implements peakdata.SpectrumProducer, blocking until Monitor
// delivers the next decoded spectrum or the stream closes.
func (p *InstrumentPort) Next() (peakdata.Spectrum, bool, error) {
	d, ok := <-p.spectra
	if !ok {
		return peakdata.Spectrum{}, false, nil
	}
	if d.err != nil {
		return peakdata.Spectrum{}, false, d.err
	}
	return d.spectrum, true, nil
}

// decodeLine parses the instrument's own simple line protocol:
//
//	<rt>,<mslevel>;<mz1>:<intensity1>,<mz2>:<intensity2>,...
//
// Not a standard instrument vendor format -- just the control link's own
// wire framing.
func decodeLine(line string) (peakdata.Spectrum, error) {
	headerAndPeaks := strings.SplitN(line, ";", 2)
	if len(headerAndPeaks) != 2 {
		return peakdata.Spectrum{}, mserr.New(mserr.InvalidData, "acquisition.decodeLine", "missing ';' separator")
	}
	header := strings.Split(headerAndPeaks[0], ",")
	if len(header) != 2 {
		return peakdata.Spectrum{}, mserr.New(mserr.InvalidData, "acquisition.decodeLine", "expected 'rt,mslevel' header")
	}
	rt, err := strconv.ParseFloat(header[0], 64)
	if err != nil {
		return peakdata.Spectrum{}, mserr.Wrap(mserr.InvalidData, "acquisition.decodeLine", "invalid RT", err)
	}
	level, err := strconv.Atoi(header[1])
	if err != nil {
		return peakdata.Spectrum{}, mserr.Wrap(mserr.InvalidData, "acquisition.decodeLine", "invalid MS level", err)
	}

	var peaks []peakdata.Peak1D
	for _, token := range strings.Split(headerAndPeaks[1], ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		pair := strings.SplitN(token, ":", 2)
		if len(pair) != 2 {
			return peakdata.Spectrum{}, mserr.New(mserr.InvalidData, "acquisition.decodeLine",
				fmt.Sprintf("malformed peak token %q", token))
		}
		mz, err := strconv.ParseFloat(pair[0], 64)
		if err != nil {
			return peakdata.Spectrum{}, mserr.Wrap(mserr.InvalidData, "acquisition.decodeLine", "invalid m/z", err)
		}
		intensity, err := strconv.ParseFloat(pair[1], 64)
		if err != nil {
			return peakdata.Spectrum{}, mserr.Wrap(mserr.InvalidData, "acquisition.decodeLine", "invalid intensity", err)
		}
		peaks = append(peaks, peakdata.Peak1D{MZ: mz, Intensity: intensity})
	}

	return peakdata.Spectrum{RT: rt, MSLevel: level, Peaks: peaks}, nil
}
