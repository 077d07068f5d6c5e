package model

import "context"

// PacketSource supplies decoded packets in capture order.
//
// Next returns io.EOF once the source is exhausted. An error wrapping
// ErrMalformedPacket means a single packet was consumed but cannot be keyed;
// any other error means the source itself failed.
type PacketSource interface {
	Next(ctx context.Context) (*PacketInfo, error)
	Close() error
}
