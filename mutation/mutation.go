// Package mutation defines the incremental-work feed consumed by the
// satlens engine. A live page produces Records (inserted subtrees, text
// edits, document resets); a debouncer folds them into Batches that are
// processed strictly in arrival order, so re-scan cost is bounded by DOM
// growth rather than whole-page passes.
package mutation

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// Op is the type of DOM change observed.
type Op string

const (
	OpInsert   Op = "insert"    // node inserted (carries serialised subtree HTML)
	OpText     Op = "text"      // character data changed
	OpDocReset Op = "doc_reset" // entire document replaced, full re-pass needed
)

// Record is a single observed DOM change.
type Record struct {
	Op       Op     `json:"op"`
	XPath    string `json:"xpath"`
	NodeID   int    `json:"node_id,omitempty"`
	Tag      string `json:"tag,omitempty"`
	Value    string `json:"value,omitempty"` // new text for OpText
	HTML     string `json:"html,omitempty"`  // serialised subtree for OpInsert
}

// Batch is the atomic work unit handed to the engine: every record
// collected during one debounce window, in arrival order.
type Batch struct {
	ID        string   `json:"id"`
	PageURL   string   `json:"page_url"`
	PageID    string   `json:"page_id"`
	Seq       uint64   `json:"seq"` // monotonically increasing per page
	Records   []Record `json:"records"`
	Timestamp int64    `json:"timestamp"` // epoch milliseconds at flush
}

// MarshalBatch serialises a Batch to JSON.
func MarshalBatch(b *Batch) ([]byte, error) {
	return json.Marshal(b)
}

// UnmarshalBatch deserialises a Batch from JSON.
func UnmarshalBatch(data []byte) (*Batch, error) {
	var b Batch
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// HashHTML returns the SHA-256 hex digest of raw HTML bytes. Used to skip
// rewriting a subtree whose content is unchanged since the last pass.
func HashHTML(html []byte) string {
	h := sha256.Sum256(html)
	return fmt.Sprintf("%x", h)
}
