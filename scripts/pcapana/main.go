package main

import (
	"Go2FlowFeatures/internal/engine/flowkey"
	"Go2FlowFeatures/internal/model"
	"Go2FlowFeatures/pkg/pcap"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./scripts/pcapana/main.go <path_to_pcap_file> [limit]")
		os.Exit(1)
	}
	limit := 0
	if len(os.Args) > 2 {
		fmt.Sscanf(os.Args[2], "%d", &limit)
	}

	reader, err := pcap.Open(os.Args[1])
	if err != nil {
		log.Fatal(err)
	}
	defer reader.Close()

	ctx := context.Background()
	i, skipped := 0, 0
	for limit == 0 || i < limit {
		info, err := reader.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, model.ErrMalformedPacket) {
			fmt.Println("skip:", err)
			skipped++
			continue
		}
		if err != nil {
			log.Fatal(err)
		}
		i++
		fmt.Printf("[%s] %s:%d -> %s:%d proto=%d len=%d key=%s\n",
			info.Timestamp.Format("15:04:05.000"),
			info.FiveTuple.SrcIP, info.FiveTuple.SrcPort,
			info.FiveTuple.DstIP, info.FiveTuple.DstPort,
			info.FiveTuple.Protocol, info.Length,
			flowkey.FromPacket(info))
	}
	fmt.Printf("%d packets, %d skipped\n", i, skipped)
}
