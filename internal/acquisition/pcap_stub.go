//go:build !pcap
// +build !pcap

package acquisition

import (
	"context"
	"fmt"
)

// ReadPCAPReplay is a stub used when PCAP support is disabled. Build
// with -tags=pcap to enable PCAP replay.
func ReadPCAPReplay(ctx context.Context, pcapFile string, udpPort int) (*ReplayProducer, error) {
	return nil, fmt.Errorf("pcap replay support not enabled: rebuild with -tags=pcap")
}
