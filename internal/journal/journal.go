// Package journal persists closed-trade records as JSON lines for later analysis.
package journal

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/razieloren/hype-train/internal/position"
)

// Entry is one closed trade.
type Entry struct {
	Time        time.Time `json:"time"`
	Asset       string    `json:"asset"`
	Reason      string    `json:"reason"`
	PnLRatio    float64   `json:"pnl_ratio"`
	PnLAbsolute float64   `json:"pnl_absolute"`
	BuyPrice    float64   `json:"buy_price"`
	SellOutcome float64   `json:"sell_outcome"`
	HeldFor     int       `json:"held_for"`
}

// FromResult flattens a position result into a journal entry.
func FromResult(result position.Result) Entry {
	pnl := result.PnL()
	return Entry{
		Time:        result.Sell.TransactTime,
		Asset:       result.Asset,
		Reason:      string(result.Reason),
		PnLRatio:    pnl.Ratio,
		PnLAbsolute: pnl.Absolute,
		BuyPrice:    result.Buy.Price(),
		SellOutcome: result.Sell.Outcome(),
		HeldFor:     result.HeldFor,
	}
}

// Recorder captures closed trades for later inspection.
type Recorder interface {
	Record(Entry)
}

// NopRecorder discards every entry.
type NopRecorder struct{}

// Record does nothing.
func (NopRecorder) Record(Entry) {}

// JSONLRecorder appends entries as JSON lines.
type JSONLRecorder struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewJSONLRecorder creates/opens the target file and returns a recorder.
func NewJSONLRecorder(path string) (*JSONLRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &JSONLRecorder{
		file: file,
		enc:  json.NewEncoder(file),
	}, nil
}

// Record writes a single entry to the underlying JSONL file.
func (r *JSONLRecorder) Record(entry Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.enc.Encode(entry)
}

// Close flushes and closes the file handle.
func (r *JSONLRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}
