//go:build pcap
// +build pcap

package acquisition

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/msflow/internal/obslog"
	"github.com/banshee-data/msflow/internal/peakdata"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// ReadPCAPReplay replays a captured instrument control-link session from a
// PCAP file as a peakdata.SpectrumProducer, for deterministic testing
// against recorded network traffic instead of a live serial link. Only
// available when building with the 'pcap' build tag.
func ReadPCAPReplay(ctx context.Context, pcapFile string, udpPort int) (*ReplayProducer, error) {
	handle, err := pcap.OpenOffline(pcapFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open PCAP file %s: %w", pcapFile, err)
	}

	filterStr := fmt.Sprintf("udp port %d", udpPort)
	if err := handle.SetBPFFilter(filterStr); err != nil {
		handle.Close()
		return nil, fmt.Errorf("failed to set BPF filter %q: %w", filterStr, err)
	}

	spectra := make([]peakdata.Spectrum, 0)
	packetSource := gopacket.NewPacketSource(handle, handle.LinkType())
	packetCount := 0
	startTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			handle.Close()
			return nil, ctx.Err()
		case packet, ok := <-packetSource.Packets():
			if !ok || packet == nil {
				elapsed := time.Since(startTime)
				obslog.Logf("acquisition: pcap replay loaded %d spectra from %d packets in %v", len(spectra), packetCount, elapsed)
				handle.Close()
				return &ReplayProducer{spectra: spectra}, nil
			}
			packetCount++

			udpLayer := packet.Layer(layers.LayerTypeUDP)
			if udpLayer == nil {
				continue
			}
			udp, ok := udpLayer.(*layers.UDP)
			if !ok || len(udp.Payload) == 0 {
				continue
			}

			s, err := decodeLine(string(udp.Payload))
			if err != nil {
				obslog.Logf("acquisition: error decoding pcap packet %d: %v", packetCount, err)
				continue
			}
			spectra = append(spectra, s)
		}
	}
}
