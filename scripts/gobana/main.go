package main

import (
	"Go2FlowFeatures/internal/engine/features"
	"Go2FlowFeatures/internal/writer/snapshot"
	"fmt"
	"os"
	"text/tabwriter"

	log "github.com/sirupsen/logrus"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./scripts/gobana/main.go <snapshot_dir>")
		os.Exit(1)
	}
	dir := os.Args[1]

	summary, err := snapshot.ReadSummary(dir)
	if err != nil {
		log.Fatalf("Unable to read summary: %v", err)
	}
	records, err := snapshot.ReadFlows(dir)
	if err != nil {
		log.Fatalf("Failed to decode gob data: %v", err)
	}

	fmt.Printf("run %s (%s) at %s: %d flows, %d packets, %d bytes\n\n",
		summary.RunID, summary.State, summary.Timestamp,
		summary.TotalFlows, summary.TotalPackets, summary.TotalBytes)

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FLOW\tPACKETS\tBYTES\tDURATION\tBYTES/S")
	for _, rec := range records {
		row := features.Extract(rec.Key, rec.Flow)
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.6f\t%.1f\n",
			rec.Key, row.TotalPackets, row.TotalBytes, row.Duration, row.BytesPerSec)
	}
	tw.Flush()
}
