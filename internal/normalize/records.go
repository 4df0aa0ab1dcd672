// Package normalize turns raw upstream rows into the documents stored per
// metric collection. Every function here is pure.
package normalize

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/web3-frozen/onchain-ingest/internal/raw"
)

// TransformError reports a row whose shape cannot be normalized, such as a
// missing required field or a zero denominator.
type TransformError struct {
	Metric string
	Row    int // -1 when not tied to a row
	Field  string
	Reason string
}

func (e *TransformError) Error() string {
	if e.Row < 0 {
		return fmt.Sprintf("normalize %s: %s: %s", e.Metric, e.Field, e.Reason)
	}
	return fmt.Sprintf("normalize %s row %d: %s: %s", e.Metric, e.Row, e.Field, e.Reason)
}

// MintRedeem is one (network, date) observation of TBILL mint/redeem flow.
type MintRedeem struct {
	Network  string  `json:"network"`
	Date     string  `json:"date"`
	Minted   float64 `json:"minted"`
	Redeemed float64 `json:"redeemed"`
	Net      float64 `json:"net"`
}

// TVL is one network's locked value at an instant.
type TVL struct {
	Network  string    `json:"network"`
	TVL      float64   `json:"tvl"`
	Datetime time.Time `json:"datetime"`
}

// UniqueHolders is one (network, date) holder count.
type UniqueHolders struct {
	Network       string  `json:"network"`
	Date          string  `json:"date"`
	UniqueHolders float64 `json:"unique_holders"`
}

// XRPLNetwork labels the record derived from the ledger RPC.
const XRPLNetwork = "xrpl"

func requireString(metric string, i int, r raw.Row, key string) (string, error) {
	s, ok := r.String(key)
	if !ok || strings.TrimSpace(s) == "" {
		return "", &TransformError{Metric: metric, Row: i, Field: key, Reason: "missing or not a string"}
	}
	return s, nil
}

// MintRedeemRecords maps rows with chain, day, minted, redeemed and net.
func MintRedeemRecords(rows []raw.Row) ([]MintRedeem, error) {
	out := make([]MintRedeem, 0, len(rows))
	for i, r := range rows {
		network, err := requireString("mint_redeem", i, r, "chain")
		if err != nil {
			return nil, err
		}
		day, err := requireString("mint_redeem", i, r, "day")
		if err != nil {
			return nil, err
		}
		out = append(out, MintRedeem{
			Network:  network,
			Date:     day,
			Minted:   r.Float("minted"),
			Redeemed: r.Float("redeemed"),
			Net:      r.Float("net"),
		})
	}
	return out, nil
}

// TVLRecords maps rows with chain, tvl and query_timestamp, then appends
// the ledger-derived record stamped with runAt.
func TVLRecords(rows []raw.Row, ledgerTVL float64, runAt time.Time) ([]TVL, error) {
	out := make([]TVL, 0, len(rows)+1)
	for i, r := range rows {
		network, err := requireString("tvl", i, r, "chain")
		if err != nil {
			return nil, err
		}
		ts, err := requireString("tvl", i, r, "query_timestamp")
		if err != nil {
			return nil, err
		}
		at, err := ParseEngineTimestamp(ts)
		if err != nil {
			return nil, &TransformError{Metric: "tvl", Row: i, Field: "query_timestamp", Reason: err.Error()}
		}
		out = append(out, TVL{Network: network, TVL: r.Float("tvl"), Datetime: at})
	}
	out = append(out, TVL{
		Network:  XRPLNetwork,
		TVL:      finite(ledgerTVL),
		Datetime: runAt.UTC(),
	})
	return out, nil
}

// UniqueHoldersRecords maps rows with chain, datetime and unique_holders.
func UniqueHoldersRecords(rows []raw.Row) ([]UniqueHolders, error) {
	out := make([]UniqueHolders, 0, len(rows))
	for i, r := range rows {
		network, err := requireString("unique_holders", i, r, "chain")
		if err != nil {
			return nil, err
		}
		date, err := requireString("unique_holders", i, r, "datetime")
		if err != nil {
			return nil, err
		}
		out = append(out, UniqueHolders{
			Network:       network,
			Date:          date,
			UniqueHolders: r.Float("unique_holders"),
		})
	}
	return out, nil
}

var engineLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.RFC3339Nano,
}

// ParseEngineTimestamp parses a space separated engine date-time such as
// "2024-01-01 12:00:00.000" as UTC. A trailing " UTC" is accepted.
func ParseEngineTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), " UTC"))
	for _, layout := range engineLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
