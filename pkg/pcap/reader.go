// Package pcap provides packet sources over capture files and live interfaces.
package pcap

import (
	"Go2FlowFeatures/internal/engine/protocol"
	"Go2FlowFeatures/internal/model"
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// ErrUnsupportedLinkType is returned for captures whose link layer cannot be decoded.
var ErrUnsupportedLinkType = errors.New("unsupported link type")

var ngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

// packetDataSource is satisfied by pcapgo.Reader and pcapgo.NgReader.
type packetDataSource interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
}

// FileReader reads packets from a classic pcap or pcapng capture.
type FileReader struct {
	file    *os.File
	src     packetDataSource
	decoder gopacket.Decoder
	frame   int
}

// Open opens a capture file.
func Open(path string) (*FileReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := NewFileReader(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	r.file = file
	return r, nil
}

// NewFileReader reads a capture from r, detecting pcap or pcapng by its magic number.
func NewFileReader(r io.Reader) (*FileReader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("read capture header: %w", err)
	}

	var (
		src      packetDataSource
		linkType layers.LinkType
	)
	if bytes.Equal(magic, ngMagic) {
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, err
		}
		src, linkType = ng, ng.LinkType()
	} else {
		classic, err := pcapgo.NewReader(br)
		if err != nil {
			return nil, err
		}
		src, linkType = classic, classic.LinkType()
	}

	decoder, err := decoderFor(linkType)
	if err != nil {
		return nil, err
	}
	return &FileReader{src: src, decoder: decoder}, nil
}

func decoderFor(linkType layers.LinkType) (gopacket.Decoder, error) {
	switch linkType {
	case layers.LinkTypeEthernet:
		return layers.LayerTypeEthernet, nil
	case layers.LinkTypeLinuxSLL:
		return layers.LayerTypeLinuxSLL, nil
	case layers.LinkTypeIPv4:
		return layers.LayerTypeIPv4, nil
	case layers.LinkTypeIPv6:
		return layers.LayerTypeIPv6, nil
	case layers.LinkTypeRaw, layers.LinkTypeNull, layers.LinkTypeLoop:
		return linkType, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedLinkType, linkType)
}

// Next returns the next IP packet. Frames without an IP layer are reported
// with an error wrapping model.ErrMalformedPacket.
func (r *FileReader) Next(ctx context.Context) (*model.PacketInfo, error) {
	data, ci, err := r.src.ReadPacketData()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read frame %d: %w", r.frame+1, err)
	}
	r.frame++
	return decode(data, ci, r.decoder, r.frame)
}

// Close closes the underlying file, if the reader owns one.
func (r *FileReader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

func decode(data []byte, ci gopacket.CaptureInfo, decoder gopacket.Decoder, frame int) (*model.PacketInfo, error) {
	packet := gopacket.NewPacket(data, decoder, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	packet.Metadata().CaptureInfo = ci
	info, err := protocol.ParsePacket(packet)
	if err != nil {
		return nil, fmt.Errorf("frame %d: %w", frame, err)
	}
	return info, nil
}
