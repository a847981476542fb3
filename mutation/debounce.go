package mutation

import "time"

// DebounceConfig controls batching behaviour.
type DebounceConfig struct {
	// Window is the debounce time. Default: 250ms.
	Window time.Duration
	// MaxBuffer flushes immediately when this many records accumulate.
	// Default: 1000.
	MaxBuffer int
}

func (dc *DebounceConfig) defaults() {
	if dc.Window <= 0 {
		dc.Window = 250 * time.Millisecond
	}
	if dc.MaxBuffer <= 0 {
		dc.MaxBuffer = 1000
	}
}

// Debouncer collects raw records and emits compressed batches when the
// window expires or the buffer fills. Not safe for concurrent use; it is
// owned by the single observation loop.
type Debouncer struct {
	cfg     DebounceConfig
	records []Record
	timer   *time.Timer
	timerCh <-chan time.Time
	flushFn func([]Record)
}

// NewDebouncer creates a Debouncer that hands flushed record slices to
// flushFn.
func NewDebouncer(cfg DebounceConfig, flushFn func([]Record)) *Debouncer {
	cfg.defaults()
	return &Debouncer{
		cfg:     cfg,
		records: make([]Record, 0, cfg.MaxBuffer),
		flushFn: flushFn,
	}
}

// Add pushes a record into the buffer. Returns true when the buffer filled
// and an immediate flush was triggered.
func (d *Debouncer) Add(rec Record) bool {
	d.records = append(d.records, rec)

	if len(d.records) >= d.cfg.MaxBuffer {
		d.Flush()
		return true
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.NewTimer(d.cfg.Window)
	d.timerCh = d.timer.C
	return false
}

// C returns the channel that fires when the debounce window expires.
func (d *Debouncer) C() <-chan time.Time {
	return d.timerCh
}

// Flush compresses and emits the buffered records, then resets.
func (d *Debouncer) Flush() {
	if len(d.records) == 0 {
		return
	}

	compressed := Compress(d.records)
	d.flushFn(compressed)

	d.records = d.records[:0]
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
		d.timerCh = nil
	}
}

// Compress folds runs of records the engine would process redundantly:
//   - consecutive text changes on the same xpath keep only the last value
//     (intermediate states will never be rendered);
//   - a doc_reset discards everything before it — the whole document is
//     re-passed anyway;
//   - inserts are never compressed, each is a distinct subtree.
func Compress(records []Record) []Record {
	if len(records) <= 1 {
		return records
	}

	// A reset makes prior work moot.
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Op == OpDocReset {
			records = records[i:]
			break
		}
	}
	if len(records) <= 1 {
		return records
	}

	result := make([]Record, 0, len(records))
	for i := 0; i < len(records); i++ {
		rec := records[i]
		if rec.Op == OpText {
			j := i + 1
			for j < len(records) && records[j].Op == OpText && records[j].XPath == rec.XPath {
				rec = records[j]
				j++
			}
			result = append(result, rec)
			i = j - 1
			continue
		}
		result = append(result, rec)
	}
	return result
}
