// Package metrics tracks per-request-type usage counters. Counters live
// in memory only and reset on process restart.
package metrics

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

// Counters holds one atomic counter per assistant use case.
type Counters struct {
	textTranslations atomic.Int64
	corrections      atomic.Int64
	reformulations   atomic.Int64
	meetingSummaries atomic.Int64
	fileTranslations atomic.Int64
}

func New() *Counters {
	return &Counters{}
}

func (c *Counters) IncTextTranslations() { c.textTranslations.Add(1) }
func (c *Counters) IncCorrections()      { c.corrections.Add(1) }
func (c *Counters) IncReformulations()   { c.reformulations.Add(1) }
func (c *Counters) IncMeetingSummaries() { c.meetingSummaries.Add(1) }
func (c *Counters) IncFileTranslations() { c.fileTranslations.Add(1) }

// Snapshot returns the current counter values.
func (c *Counters) Snapshot() map[string]int64 {
	return map[string]int64{
		"text_translations": c.textTranslations.Load(),
		"corrections":       c.corrections.Load(),
		"reformulations":    c.reformulations.Load(),
		"meeting_summaries": c.meetingSummaries.Load(),
		"file_translations": c.fileTranslations.Load(),
	}
}

// Handler serves the snapshot as JSON.
func (c *Counters) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(c.Snapshot()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}
