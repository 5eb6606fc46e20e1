package infra

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"abuse-gateway/middleware/guard/domain"
)

// wireBlock e wireSnapshot são o formato JSON persistido (tempos em epoch seconds).
type wireBlock struct {
	Reason       string  `json:"reason"`
	BlockedAt    float64 `json:"blocked_at"`
	BlockedUntil float64 `json:"blocked_until"`
	Duration     int64   `json:"duration"`
}

type wireSnapshot struct {
	BlockedIPs      map[string]wireBlock `json:"blocked_ips"`
	Whitelist       []string             `json:"whitelist"`
	TrustedNetworks []string             `json:"trusted_networks"`
	SavedAt         float64              `json:"saved_at"`
}

func toEpoch(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / 1e9
}

func fromEpoch(v float64) time.Time {
	sec, frac := math.Modf(v)
	return time.Unix(int64(sec), int64(frac*1e9))
}

func encodeSnapshot(s domain.Snapshot) ([]byte, error) {
	w := wireSnapshot{
		BlockedIPs:      make(map[string]wireBlock, len(s.BlockedIPs)),
		Whitelist:       s.Whitelist,
		TrustedNetworks: s.TrustedNetworks,
		SavedAt:         toEpoch(s.SavedAt),
	}
	if w.Whitelist == nil {
		w.Whitelist = []string{}
	}
	if w.TrustedNetworks == nil {
		w.TrustedNetworks = []string{}
	}
	for k, rec := range s.BlockedIPs {
		w.BlockedIPs[string(k)] = wireBlock{
			Reason:       rec.Reason,
			BlockedAt:    toEpoch(rec.BlockedAt),
			BlockedUntil: toEpoch(rec.BlockedUntil),
			Duration:     int64(rec.Duration / time.Second),
		}
	}
	return json.MarshalIndent(w, "", "  ")
}

func decodeSnapshot(data []byte) (domain.Snapshot, error) {
	var w wireSnapshot
	if err := json.Unmarshal(data, &w); err != nil {
		return domain.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}

	s := domain.Snapshot{
		BlockedIPs:      make(map[domain.Key]domain.BlockRecord, len(w.BlockedIPs)),
		Whitelist:       w.Whitelist,
		TrustedNetworks: w.TrustedNetworks,
	}
	if w.SavedAt > 0 {
		s.SavedAt = fromEpoch(w.SavedAt)
	}
	for ip, b := range w.BlockedIPs {
		at := fromEpoch(b.BlockedAt)
		until := fromEpoch(b.BlockedUntil)
		d := time.Duration(b.Duration) * time.Second
		if d <= 0 {
			d = until.Sub(at)
		}
		s.BlockedIPs[domain.Key(ip)] = domain.BlockRecord{
			Reason:       b.Reason,
			BlockedAt:    at,
			BlockedUntil: until,
			Duration:     d,
		}
	}
	return s, nil
}
