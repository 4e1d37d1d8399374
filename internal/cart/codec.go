package cart

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/noah-isme/toko-storefront/internal/pricing"
)

// Reasons a persisted entry is dropped on load.
const (
	ReasonUnreadable      = "unreadable payload"
	ReasonMalformed       = "malformed entry"
	ReasonProductID       = "invalid productId"
	ReasonQuantity        = "invalid quantity"
	ReasonTiers           = "invalid tiers"
	ReasonVATRate         = "invalid vatRate"
	ReasonCashbackPercent = "invalid cashbackPercent"
	ReasonDuplicate       = "duplicate productId"
)

// Dropped describes one persisted entry discarded on load. Index is -1 when
// the payload as a whole could not be read.
type Dropped struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

func (d Dropped) String() string {
	if d.Index < 0 {
		return "stored cart discarded: " + d.Reason
	}
	return fmt.Sprintf("cart entry %d dropped: %s", d.Index, d.Reason)
}

// LoadReport lists what was dropped while loading a cart.
type LoadReport struct {
	Dropped []Dropped `json:"dropped,omitempty"`
}

// Warnings renders the report for API responses.
func (r LoadReport) Warnings() []string {
	if len(r.Dropped) == 0 {
		return nil
	}
	out := make([]string, 0, len(r.Dropped))
	for _, d := range r.Dropped {
		out = append(out, d.String())
	}
	return out
}

// Encode serialises lines in their persisted form.
func Encode(lines []Line) ([]byte, error) {
	if lines == nil {
		lines = []Line{}
	}
	data, err := json.Marshal(lines)
	if err != nil {
		return nil, fmt.Errorf("encode cart: %w", err)
	}
	return data, nil
}

// persistedLine keeps productId and quantity raw so that non-integer values
// are reported rather than failing the whole payload.
type persistedLine struct {
	ProductID       json.RawMessage     `json:"productId"`
	Quantity        json.RawMessage     `json:"quantity"`
	Tiers           []pricing.PriceTier `json:"tiers"`
	VATRate         *pricing.Money      `json:"vatRate"`
	CashbackPercent *pricing.Money      `json:"cashbackPercent"`
}

// Decode parses a persisted cart. Entries that cannot form a valid line are
// dropped and reported; the rest keep their order.
func Decode(data []byte) ([]Line, LoadReport) {
	var report LoadReport
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, report
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		report.Dropped = append(report.Dropped, Dropped{Index: -1, Reason: ReasonUnreadable})
		return nil, report
	}

	lines := make([]Line, 0, len(raw))
	seen := make(map[int]struct{}, len(raw))
	for i, entry := range raw {
		line, reason := decodeLine(entry)
		if reason == "" {
			if _, dup := seen[line.ProductID]; dup {
				reason = ReasonDuplicate
			}
		}
		if reason != "" {
			report.Dropped = append(report.Dropped, Dropped{Index: i, Reason: reason})
			continue
		}
		seen[line.ProductID] = struct{}{}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		lines = nil
	}
	return lines, report
}

func decodeLine(entry json.RawMessage) (Line, string) {
	var p persistedLine
	if err := json.Unmarshal(entry, &p); err != nil {
		return Line{}, ReasonMalformed
	}
	id, ok := positiveInt(p.ProductID)
	if !ok {
		return Line{}, ReasonProductID
	}
	qty, ok := positiveInt(p.Quantity)
	if !ok {
		return Line{}, ReasonQuantity
	}
	if p.VATRate == nil {
		return Line{}, ReasonVATRate
	}
	if p.CashbackPercent == nil {
		return Line{}, ReasonCashbackPercent
	}
	line := Line{
		ProductID:       id,
		Quantity:        qty,
		Tiers:           p.Tiers,
		VATRate:         *p.VATRate,
		CashbackPercent: *p.CashbackPercent,
	}
	if err := validateLine(line); err != nil {
		return Line{}, reasonFor(err)
	}
	return line, ""
}

// positiveInt accepts a JSON integer of at least one. Fractions, strings and
// null are rejected.
func positiveInt(raw json.RawMessage) (int, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] == '"' {
		return 0, false
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
