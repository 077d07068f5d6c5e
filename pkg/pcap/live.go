package pcap

import (
	"Go2FlowFeatures/internal/model"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	log "github.com/sirupsen/logrus"
)

// LiveOptions configure an interface capture.
type LiveOptions struct {
	Interface string
	BPF       string
	SnapLen   int32
	Promisc   bool
	// Timeout bounds each blocking read so cancellation is noticed.
	Timeout time.Duration
	// Tap, if set, sees every raw frame before it is decoded.
	Tap func(ci gopacket.CaptureInfo, data []byte)
}

// LiveReader captures packets from a network interface through libpcap.
type LiveReader struct {
	handle  *pcap.Handle
	decoder gopacket.Decoder
	tap     func(ci gopacket.CaptureInfo, data []byte)
	frame   int
}

// OpenLive starts a capture on opts.Interface.
func OpenLive(opts LiveOptions) (*LiveReader, error) {
	if opts.Interface == "" {
		return nil, errors.New("capture interface is required")
	}
	if opts.SnapLen <= 0 {
		opts.SnapLen = 1600
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 500 * time.Millisecond
	}

	handle, err := pcap.OpenLive(opts.Interface, opts.SnapLen, opts.Promisc, opts.Timeout)
	if err != nil {
		return nil, fmt.Errorf("open device %s: %w", opts.Interface, err)
	}
	if opts.BPF != "" {
		if err := handle.SetBPFFilter(opts.BPF); err != nil {
			handle.Close()
			return nil, fmt.Errorf("set BPF filter %q: %w", opts.BPF, err)
		}
	}

	decoder, err := decoderFor(handle.LinkType())
	if err != nil {
		handle.Close()
		return nil, err
	}
	log.WithFields(log.Fields{
		"interface": opts.Interface,
		"bpf":       opts.BPF,
		"snaplen":   opts.SnapLen,
	}).Info("Live capture started")
	return &LiveReader{handle: handle, decoder: decoder, tap: opts.Tap}, nil
}

// Next blocks until a packet arrives or ctx is done.
func (r *LiveReader) Next(ctx context.Context) (*model.PacketInfo, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, ci, err := r.handle.ReadPacketData()
		switch {
		case err == nil:
			r.frame++
			if r.tap != nil {
				r.tap(ci, data)
			}
			return decode(data, ci, r.decoder, r.frame)
		case errors.Is(err, pcap.NextErrorTimeoutExpired):
			continue
		case errors.Is(err, io.EOF):
			return nil, io.EOF
		default:
			return nil, fmt.Errorf("capture read: %w", err)
		}
	}
}

// LinkType is the link layer of the capture.
func (r *LiveReader) LinkType() layers.LinkType {
	return r.handle.LinkType()
}

// Close stops the capture.
func (r *LiveReader) Close() error {
	r.handle.Close()
	return nil
}
