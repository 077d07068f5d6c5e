package runner

import (
	"Go2FlowFeatures/internal/model"
	"context"
	"io"
	"net/netip"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
)

// loopSource replays a fixed packet slice forever.
type loopSource struct {
	packets []*model.PacketInfo
	pos     int
}

func (s *loopSource) Next(context.Context) (*model.PacketInfo, error) {
	if len(s.packets) == 0 {
		return nil, io.EOF
	}
	p := s.packets[s.pos%len(s.packets)]
	s.pos++
	return p, nil
}

func (s *loopSource) Close() error { return nil }

func syntheticPackets(flows, perFlow int) []*model.PacketInfo {
	base := time.Unix(1700000000, 0)
	packets := make([]*model.PacketInfo, 0, flows*perFlow)
	for j := 0; j < perFlow; j++ {
		for i := 0; i < flows; i++ {
			client := netip.AddrFrom4([4]byte{10, byte(i >> 16), byte(i >> 8), byte(i)})
			server := netip.AddrFrom4([4]byte{192, 168, 0, 1})
			ft := model.FiveTuple{SrcIP: client, DstIP: server, SrcPort: uint16(1024 + i%60000), DstPort: 443, Protocol: 6}
			if j%2 == 1 {
				ft.SrcIP, ft.DstIP, ft.SrcPort, ft.DstPort = ft.DstIP, ft.SrcIP, ft.DstPort, ft.SrcPort
			}
			packets = append(packets, &model.PacketInfo{
				Timestamp:    base.Add(time.Duration(j*flows+i) * time.Microsecond),
				FiveTuple:    ft,
				Length:       64 + i%1400,
				HasTransport: true,
			})
		}
	}
	return packets
}

func BenchmarkRun(b *testing.B) {
	level := log.GetLevel()
	log.SetLevel(log.WarnLevel)
	defer log.SetLevel(level)

	packets := syntheticPackets(10000, 10)
	r := New(Options{PacketBudget: len(packets)})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		res := r.Run(context.Background(), &loopSource{packets: packets})
		if res.Flows != 10000 {
			b.Fatalf("expected 10000 flows, got %d", res.Flows)
		}
	}
	b.ReportMetric(float64(len(packets)*b.N)/b.Elapsed().Seconds(), "packets/s")
}
