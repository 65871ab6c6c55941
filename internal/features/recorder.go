package features

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"plasmatrader/internal/core"
)

const (
	recorderQueue = 4096
	recorderFlush = 2 * time.Second
)

var datasetColumns = []string{
	"timestamp", "symbol", "price",
	"fused_pct", "confidence", "decision",
	"label_return", "label_class",
}

// pendingSignal is a signal waiting for its look-ahead price.
type pendingSignal struct {
	at     time.Time
	price  float64
	signal core.PredictionSignal
}

// Recorder labels every emitted signal with the realized return after a
// look-ahead horizon and appends it to a CSV dataset for offline retraining
// of the forecaster. Rows are written by a single goroutine; when it falls
// behind, rows are dropped rather than blocking the trading loop.
type Recorder struct {
	mu        sync.Mutex
	pending   []pendingSignal
	horizon   time.Duration
	threshold float64

	out     *os.File
	csv     *csv.Writer
	rows    chan []string
	quit    chan struct{}
	drained chan struct{}
}

func NewRecorder(filename string, lookAhead time.Duration, threshold float64) (*Recorder, error) {
	info, statErr := os.Stat(filename)
	fresh := errors.Is(statErr, fs.ErrNotExist) || (statErr == nil && info.Size() == 0)

	out, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open dataset file: %w", err)
	}

	cw := csv.NewWriter(out)
	if fresh {
		cw.Write(datasetColumns)
		cw.Flush()
		if err := cw.Error(); err != nil {
			out.Close()
			return nil, fmt.Errorf("write dataset header: %w", err)
		}
	}

	r := &Recorder{
		horizon:   lookAhead,
		threshold: threshold,
		out:       out,
		csv:       cw,
		rows:      make(chan []string, recorderQueue),
		quit:      make(chan struct{}),
		drained:   make(chan struct{}),
	}
	go r.writeLoop()
	return r, nil
}

// AddSignal queues a signal emitted at price.
func (r *Recorder) AddSignal(sig core.PredictionSignal, price float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, pendingSignal{at: sig.Timestamp, price: price, signal: sig.Clone()})
}

// Process labels every queued signal older than the look-ahead horizon
// against currentPrice.
func (r *Recorder) Process(currentPrice float64, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// signals are queued in emission order
	mature := sort.Search(len(r.pending), func(i int) bool {
		return now.Sub(r.pending[i].at) < r.horizon
	})
	for _, p := range r.pending[:mature] {
		if row, ok := r.label(p, currentPrice); ok {
			r.enqueue(row)
		}
	}
	r.pending = append(r.pending[:0:0], r.pending[mature:]...)
}

// Pending is the number of signals still waiting for their label.
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Recorder) label(p pendingSignal, future float64) ([]string, bool) {
	if p.price == 0 {
		return nil, false
	}
	ret := (future - p.price) / p.price

	class := "0"
	switch {
	case ret > r.threshold:
		class = "1"
	case ret < -r.threshold:
		class = "-1"
	}

	return []string{
		p.at.UTC().Format(time.RFC3339Nano),
		p.signal.Symbol,
		strconv.FormatFloat(p.price, 'f', 2, 64),
		strconv.FormatFloat(p.signal.FusedPredictionPct, 'f', 6, 64),
		strconv.FormatFloat(p.signal.Confidence, 'f', 4, 64),
		string(p.signal.Decision),
		strconv.FormatFloat(ret, 'f', 6, 64),
		class,
	}, true
}

func (r *Recorder) enqueue(row []string) {
	select {
	case r.rows <- row:
	default:
	}
}

func (r *Recorder) writeLoop() {
	defer close(r.drained)
	flush := time.NewTicker(recorderFlush)
	defer flush.Stop()

	for {
		select {
		case row := <-r.rows:
			r.csv.Write(row)
		case <-flush.C:
			r.csv.Flush()
		case <-r.quit:
			for len(r.rows) > 0 {
				r.csv.Write(<-r.rows)
			}
			r.csv.Flush()
			return
		}
	}
}

// Close flushes queued rows and closes the dataset file.
func (r *Recorder) Close() error {
	close(r.quit)
	<-r.drained
	return errors.Join(r.csv.Error(), r.out.Close())
}
