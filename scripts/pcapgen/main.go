package main

import (
	"math/rand"
	"net"
	"os"
	"strings"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

type packetWriter interface {
	WritePacket(ci gopacket.CaptureInfo, data []byte) error
}

type flow struct {
	client, server net.IP
	cport, sport   uint16
	proto          layers.IPProtocol
}

func main() {
	outputFile := pflag.StringP("output", "o", "test.pcap", "Output file (.pcapng selects pcapng)")
	packetCount := pflag.IntP("count", "c", 1000, "Number of packets to generate")
	flowCount := pflag.IntP("flows", "f", 50, "Number of distinct bidirectional flows")
	arpEvery := pflag.Int("arp-every", 0, "Insert an ARP frame every N packets (0 = never)")
	seed := pflag.Int64("seed", time.Now().UnixNano(), "Random seed")
	pflag.Parse()

	if *flowCount <= 0 {
		log.Fatal("--flows must be positive")
	}

	f, err := os.Create(*outputFile)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer f.Close()

	var (
		w     packetWriter
		flush = func() error { return nil }
	)
	if strings.HasSuffix(*outputFile, ".pcapng") {
		ng, err := pcapgo.NewNgWriter(f, layers.LinkTypeEthernet)
		if err != nil {
			log.Fatalf("Failed to create pcapng writer: %v", err)
		}
		w, flush = ng, ng.Flush
	} else {
		classic := pcapgo.NewWriter(f)
		if err := classic.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
			log.Fatalf("Failed to write pcap header: %v", err)
		}
		w = classic
	}

	rng := rand.New(rand.NewSource(*seed))
	flows := make([]flow, *flowCount)
	for i := range flows {
		flows[i] = randomFlow(rng)
	}

	log.WithFields(log.Fields{"packets": *packetCount, "flows": *flowCount, "output": *outputFile}).Info("Generating capture")

	ts := time.Now().Truncate(time.Second)
	for i := 0; i < *packetCount; i++ {
		if (i+1)%100000 == 0 {
			log.Infof("Generated %d packets...", i+1)
		}
		ts = ts.Add(time.Duration(rng.Intn(5000)) * time.Microsecond)

		var data []byte
		if *arpEvery > 0 && i%*arpEvery == *arpEvery-1 {
			data = arpFrame()
		} else {
			fl := flows[rng.Intn(len(flows))]
			data = ipFrame(rng, fl, rng.Intn(2) == 0)
		}

		ci := gopacket.CaptureInfo{Timestamp: ts, CaptureLength: len(data), Length: len(data)}
		if err := w.WritePacket(ci, data); err != nil {
			log.Fatalf("Failed to write packet: %v", err)
		}
	}
	if err := flush(); err != nil {
		log.Fatalf("Failed to flush output: %v", err)
	}

	log.Infof("Successfully generated %d packets into %s.", *packetCount, *outputFile)
}

func randomFlow(rng *rand.Rand) flow {
	proto := layers.IPProtocolTCP
	if rng.Intn(3) == 0 {
		proto = layers.IPProtocolUDP
	}
	return flow{
		client: net.IP{10, byte(rng.Intn(256)), byte(rng.Intn(256)), byte(rng.Intn(254) + 1)},
		server: net.IP{192, 168, byte(rng.Intn(256)), byte(rng.Intn(254) + 1)},
		cport:  uint16(rng.Intn(65535-1024) + 1024),
		sport:  []uint16{22, 53, 80, 443, 8080}[rng.Intn(5)],
		proto:  proto,
	}
}

var (
	clientMAC = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	serverMAC = net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA}
)

func ipFrame(rng *rand.Rand, fl flow, reply bool) []byte {
	srcIP, dstIP, srcPort, dstPort := fl.client, fl.server, fl.cport, fl.sport
	srcMAC, dstMAC := clientMAC, serverMAC
	if reply {
		srcIP, dstIP, srcPort, dstPort = dstIP, srcIP, dstPort, srcPort
		srcMAC, dstMAC = dstMAC, srcMAC
	}

	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{SrcIP: srcIP, DstIP: dstIP, Version: 4, TTL: 64, Protocol: fl.proto}

	var transport gopacket.SerializableLayer
	if fl.proto == layers.IPProtocolTCP {
		tcp := &layers.TCP{
			SrcPort: layers.TCPPort(srcPort),
			DstPort: layers.TCPPort(dstPort),
			Seq:     rng.Uint32(),
			Ack:     rng.Uint32(),
			ACK:     true,
			Window:  14600,
		}
		tcp.SetNetworkLayerForChecksum(ip)
		transport = tcp
	} else {
		udp := &layers.UDP{SrcPort: layers.UDPPort(srcPort), DstPort: layers.UDPPort(dstPort)}
		udp.SetNetworkLayerForChecksum(ip)
		transport = udp
	}

	payload := make([]byte, rng.Intn(1400)+50)
	rng.Read(payload)

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, transport, gopacket.Payload(payload)); err != nil {
		log.Fatalf("Failed to serialize layers: %v", err)
	}
	return buf.Bytes()
}

func arpFrame() []byte {
	eth := &layers.Ethernet{SrcMAC: clientMAC, DstMAC: layers.EthernetBroadcast, EthernetType: layers.EthernetTypeARP}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   clientMAC,
		SourceProtAddress: []byte{10, 0, 0, 1},
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    []byte{10, 0, 0, 2},
	}
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, eth, arp); err != nil {
		log.Fatalf("Failed to serialize ARP: %v", err)
	}
	return buf.Bytes()
}
