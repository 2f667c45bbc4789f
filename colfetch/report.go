package colfetch

import (
	"io"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// json is a drop-in replacement for encoding/json with better performance.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Stat is the timing of one named operation.
type Stat struct {
	Name     string        `json:"name"`
	Start    time.Time     `json:"start"`
	End      time.Time     `json:"end"`
	Duration time.Duration `json:"duration_ns"`
}

// BlockSummary reports the outcome of one block read.
type BlockSummary struct {
	Index   int           `json:"index"`
	Offset  int64         `json:"offset"`
	Size    int64         `json:"size"`
	Columns int           `json:"columns"`
	Written int64         `json:"written"`
	Elapsed time.Duration `json:"elapsed_ns"`
	Error   string        `json:"error,omitempty"`
	Kind    string        `json:"kind,omitempty"`
}

// Report summarises a session run.
type Report struct {
	Locator      string         `json:"locator"`
	Size         int64          `json:"size"`
	Mode         string         `json:"mode,omitempty"`
	FooterLength uint32         `json:"footer_length,omitempty"`
	RoundTrips   int            `json:"round_trips,omitempty"`
	Blocks       []BlockSummary `json:"blocks,omitempty"`
	Stats        []Stat         `json:"stats"`
	Error        string         `json:"error,omitempty"`
	Kind         string         `json:"kind,omitempty"`
}

// SetFooter records the footer discovery outcome.
func (r *Report) SetFooter(fd *FooterDescriptor) {
	if fd == nil {
		return
	}
	r.FooterLength = fd.FooterLength
	r.RoundTrips = fd.RoundTrips
}

// AddBlocks records per-block outcomes.
func (r *Report) AddBlocks(results []*BlockResult) {
	for _, br := range results {
		if br == nil {
			continue
		}
		s := BlockSummary{
			Index:   br.Block.Index,
			Offset:  br.Block.StartOffset,
			Size:    br.Block.TotalSize,
			Columns: len(br.Block.Columns),
			Elapsed: br.Elapsed,
		}
		if br.Buffer != nil {
			s.Written = br.Buffer.Written()
		}
		if br.Err != nil {
			s.Error = br.Err.Error()
			s.Kind = KindOf(br.Err).String()
		}
		r.Blocks = append(r.Blocks, s)
	}
}

// SetError records the run's terminal error.
func (r *Report) SetError(err error) {
	if err == nil {
		return
	}
	r.Error = err.Error()
	r.Kind = KindOf(err).String()
}

// Encode writes the report as indented JSON.
func (r *Report) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// statRecorder collects operation timings.
type statRecorder struct {
	mu    sync.Mutex
	stats []Stat
}

// time starts timing name and returns the function that stops it.
func (r *statRecorder) time(name string) func() {
	start := time.Now()
	return func() { r.add(name, start, time.Since(start)) }
}

func (r *statRecorder) add(name string, start time.Time, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats = append(r.stats, Stat{Name: name, Start: start, End: start.Add(d), Duration: d})
}

func (r *statRecorder) snapshot() []Stat {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Stat(nil), r.stats...)
}
