package probe

import (
	"Go2FlowFeatures/internal/model"
	"fmt"
	"net/netip"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// EncodePacket serializes a PacketInfo to protobuf.
func EncodePacket(info *model.PacketInfo) ([]byte, error) {
	msg := &structpb.Struct{Fields: map[string]*structpb.Value{
		"timestamp":     structpb.NewStringValue(info.Timestamp.UTC().Format(time.RFC3339Nano)),
		"src_ip":        structpb.NewStringValue(info.FiveTuple.SrcIP.String()),
		"dst_ip":        structpb.NewStringValue(info.FiveTuple.DstIP.String()),
		"src_port":      structpb.NewNumberValue(float64(info.FiveTuple.SrcPort)),
		"dst_port":      structpb.NewNumberValue(float64(info.FiveTuple.DstPort)),
		"protocol":      structpb.NewNumberValue(float64(info.FiveTuple.Protocol)),
		"length":        structpb.NewNumberValue(float64(info.Length)),
		"has_transport": structpb.NewBoolValue(info.HasTransport),
	}}
	return proto.Marshal(msg)
}

// DecodePacket reverses EncodePacket. Any decoding failure wraps
// model.ErrMalformedPacket.
func DecodePacket(data []byte) (*model.PacketInfo, error) {
	var msg structpb.Struct
	if err := proto.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal packet: %v: %w", err, model.ErrMalformedPacket)
	}
	fields := msg.GetFields()

	ts, err := time.Parse(time.RFC3339Nano, fields["timestamp"].GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("packet timestamp: %v: %w", err, model.ErrMalformedPacket)
	}
	src, err := netip.ParseAddr(fields["src_ip"].GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("packet source address: %v: %w", err, model.ErrMalformedPacket)
	}
	dst, err := netip.ParseAddr(fields["dst_ip"].GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("packet destination address: %v: %w", err, model.ErrMalformedPacket)
	}

	return &model.PacketInfo{
		Timestamp: ts,
		FiveTuple: model.FiveTuple{
			SrcIP:    src,
			DstIP:    dst,
			SrcPort:  uint16(fields["src_port"].GetNumberValue()),
			DstPort:  uint16(fields["dst_port"].GetNumberValue()),
			Protocol: uint8(fields["protocol"].GetNumberValue()),
		},
		Length:       int(fields["length"].GetNumberValue()),
		HasTransport: fields["has_transport"].GetBoolValue(),
	}, nil
}
