// Package finality implements a sliding-window median over
// author-reported finalized block heights, firing a stall signal when the
// median lags too far behind the current block height.
package finality

import (
	"sort"
	"sync"

	"github.com/aura-chain/aura-engine/log"
	"github.com/aura-chain/aura-engine/metrics"
)

// Defaults for a production deployment.
const (
	DefaultWindowSize    = 101
	DefaultReportLatency = 1000
)

// StallHook is invoked when the sliding window detects finality lagging
// too far behind the current block height. The argument is the number of
// additional blocks the caller should wait before re-checking.
type StallHook func(additionalBlocksToWait uint64)

// Window is the chain-storage item tracking perceived-finalized heights
//. Recent is chronological (most recent last); Ordered holds the
// same multiset sorted ascending so the median is O(1) to read; each insert
// or removal finds its position by binary search and shifts the slice, O(n).
type Window struct {
	mu sync.Mutex

	Recent      []uint64
	Ordered     []uint64
	Median      uint64
	WindowSize  int
	ReportLatency uint64
	Initialized bool

	pendingHint    uint64
	pendingHintSet bool

	log  *log.Logger
	hook StallHook
}

// NewWindow creates a Window with the given configuration. A non-positive
// windowSize falls back to DefaultWindowSize.
func NewWindow(windowSize int, reportLatency uint64, hook StallHook, logger *log.Logger) *Window {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Window{
		WindowSize:    windowSize,
		ReportLatency: reportLatency,
		hook:          hook,
		log:           logger.Module("aura.finality"),
	}
}

// DefaultWindow creates a Window using the default configuration.
func DefaultWindow(hook StallHook, logger *log.Logger) *Window {
	return NewWindow(DefaultWindowSize, DefaultReportLatency, hook, logger)
}

// FinalHint records the current author's perceived-finalized height for
// this block. Preconditions (caller is an unsigned inherent,
// at most one hint per block, number <= current block number) are the
// runtime's responsibility to enforce before calling this; Window only
// enforces the one-shot-per-block rule.
func (w *Window) FinalHint(number uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pendingHintSet {
		return errAlreadyHinted
	}
	w.pendingHint = number
	w.pendingHintSet = true
	return nil
}

var errAlreadyHinted = errHint("finality: a hint was already submitted for this block")

type errHint string

func (e errHint) Error() string { return string(e) }

// Finalize runs the block-finalisation algorithm, called
// deterministically once per block. currentBlockNumber is the height of
// the block being finalised.
func (w *Window) Finalize(currentBlockNumber uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.Initialized {
		w.Recent = []uint64{0}
		w.Ordered = []uint64{0}
		w.Median = 0
		w.Initialized = true
	}

	hint := w.pendingHint
	if !w.pendingHintSet {
		hint = w.Recent[len(w.Recent)-1]
	}
	w.pendingHintSet = false
	w.pendingHint = 0

	window := w.WindowSize
	if window < 1 {
		window = 1
	}

	// Prune: drop |Recent|+1-window oldest entries.
	drop := len(w.Recent) + 1 - window
	for i := 0; i < drop; i++ {
		oldest := w.Recent[0]
		w.Recent = w.Recent[1:]
		w.Ordered = removeSorted(w.Ordered, oldest)
	}

	w.Ordered = insertSorted(w.Ordered, hint)
	w.Recent = append(w.Recent, hint)

	n := len(w.Ordered)
	if n%2 == 1 {
		w.Median = w.Ordered[n/2]
	} else {
		w.Median = (w.Ordered[n/2] + w.Ordered[n/2-1]) / 2
	}
	metrics.FinalityMedian.Set(int64(w.Median))

	if len(w.Recent) == window {
		delay := w.ReportLatency + uint64(window)/2
		if w.Median+delay <= currentBlockNumber {
			metrics.FinalityStallsFired.Inc()
			w.log.Warn("finality stall detected", "median", w.Median, "current_block", currentBlockNumber, "window", window)
			if w.hook != nil {
				w.hook(uint64(window - 1))
			}
		}
	}
}

// ShouldEmitHint reports whether the author's perceived finalized height
// differs from the window's last recorded value: emit final_hint only on
// a change.
func (w *Window) ShouldEmitHint(perceivedFinalized uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.Recent) == 0 {
		return true
	}
	return perceivedFinalized != w.Recent[len(w.Recent)-1]
}

// Snapshot returns a copy of the window's current state for inspection.
func (w *Window) Snapshot() (recent, ordered []uint64, median uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	recent = append([]uint64(nil), w.Recent...)
	ordered = append([]uint64(nil), w.Ordered...)
	return recent, ordered, w.Median
}

func insertSorted(s []uint64, v uint64) []uint64 {
	i := sort.Search(len(s), func(i int) bool { return s[i] >= v })
	s = append(s, 0)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

func removeSorted(s []uint64, v uint64) []uint64 {
	i := sort.Search(len(s), func(i int) bool { return s[i] >= v })
	if i < len(s) && s[i] == v {
		return append(s[:i], s[i+1:]...)
	}
	return s
}
