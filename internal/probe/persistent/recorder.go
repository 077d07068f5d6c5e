// Package persistent records raw captured frames to a pcap file next to the
// flow pipeline, so a live run can be replayed offline later.
package persistent

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	log "github.com/sirupsen/logrus"
)

const defaultBuffer = 10000

type frame struct {
	ci   gopacket.CaptureInfo
	data []byte
}

// Recorder writes frames to a timestamped pcap file from a single goroutine.
type Recorder struct {
	path    string
	file    *os.File
	writer  *pcapgo.Writer
	frames  chan frame
	wg      sync.WaitGroup
	written atomic.Uint64
	dropped atomic.Uint64
	errOnce sync.Once
	err     error
	stop    sync.Once
}

// NewRecorder creates <dir>/<timestamp>.pcap and starts the writer goroutine.
func NewRecorder(dir string, linkType layers.LinkType, snapLen uint32, buffer int) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create persistence directory: %w", err)
	}
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if snapLen == 0 {
		snapLen = 65536
	}

	path := filepath.Join(dir, time.Now().Format("2006-01-02_15-04-05")+".pcap")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	writer := pcapgo.NewWriter(file)
	if err := writer.WriteFileHeader(snapLen, linkType); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write pcap header: %w", err)
	}

	r := &Recorder{
		path:   path,
		file:   file,
		writer: writer,
		frames: make(chan frame, buffer),
	}
	r.wg.Add(1)
	go r.run()
	log.WithField("path", path).Info("Recording raw frames")
	return r, nil
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for f := range r.frames {
		if err := r.writer.WritePacket(f.ci, f.data); err != nil {
			r.errOnce.Do(func() { r.err = err })
			log.WithError(err).Warn("Failed to record frame")
			continue
		}
		r.written.Add(1)
	}
}

// Path is the pcap file being written.
func (r *Recorder) Path() string {
	return r.path
}

// Enqueue queues a frame, dropping it when the buffer is full. data must not
// be reused by the caller.
func (r *Recorder) Enqueue(ci gopacket.CaptureInfo, data []byte) bool {
	select {
	case r.frames <- frame{ci: ci, data: data}:
		return true
	default:
		r.dropped.Add(1)
		return false
	}
}

// Stop flushes the queued frames and closes the file. It returns the
// first write error, if any.
func (r *Recorder) Stop() error {
	var err error
	r.stop.Do(func() {
		close(r.frames)
		r.wg.Wait()
		err = r.err
		if cerr := r.file.Close(); err == nil {
			err = cerr
		}
		log.WithFields(log.Fields{
			"path":    r.path,
			"written": r.written.Load(),
			"dropped": r.dropped.Load(),
		}).Info("Recorder stopped")
	})
	return err
}

// Stats returns the number of frames written and dropped so far.
func (r *Recorder) Stats() (written, dropped uint64) {
	return r.written.Load(), r.dropped.Load()
}
