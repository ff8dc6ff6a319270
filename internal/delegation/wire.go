package delegation

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// caveatWire is the storage form of a caveat. Kind selects the variant;
// the remaining fields are populated per kind.
type caveatWire struct {
	Kind      string   `json:"kind"`
	NotBefore int64    `json:"not_before,omitempty"`
	NotAfter  int64    `json:"not_after,omitempty"`
	Limit     int64    `json:"limit,omitempty"`
	Used      int64    `json:"used,omitempty"`
	Targets   []string `json:"targets,omitempty"`
	Selectors []string `json:"selectors,omitempty"`
}

// MarshalCaveats serializes caveats for ledger storage.
func MarshalCaveats(caveats []Caveat) ([]byte, error) {
	wire := make([]caveatWire, 0, len(caveats))
	for _, caveat := range caveats {
		switch c := caveat.(type) {
		case TimeWindowCaveat:
			w := caveatWire{Kind: c.Kind()}
			if !c.NotBefore.IsZero() {
				w.NotBefore = c.NotBefore.Unix()
			}
			if !c.NotAfter.IsZero() {
				w.NotAfter = c.NotAfter.Unix()
			}
			wire = append(wire, w)
		case CallLimitCaveat:
			wire = append(wire, caveatWire{Kind: c.Kind(), Limit: c.Limit, Used: c.Used})
		case AllowedTargetsCaveat:
			targets := make([]string, 0, len(c.Targets))
			for _, t := range c.Targets {
				targets = append(targets, t.Hex())
			}
			wire = append(wire, caveatWire{Kind: c.Kind(), Targets: targets})
		case AllowedMethodsCaveat:
			selectors := make([]string, 0, len(c.Selectors))
			for _, s := range c.Selectors {
				selectors = append(selectors, "0x"+hex.EncodeToString(s[:]))
			}
			wire = append(wire, caveatWire{Kind: c.Kind(), Selectors: selectors})
		default:
			return nil, fmt.Errorf("caveat kind %q has no wire encoding", caveat.Kind())
		}
	}
	return json.Marshal(wire)
}

// UnmarshalCaveats restores caveats from their storage form.
func UnmarshalCaveats(data []byte) ([]Caveat, error) {
	var wire []caveatWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("failed to parse caveats: %w", err)
	}

	caveats := make([]Caveat, 0, len(wire))
	for _, w := range wire {
		switch w.Kind {
		case "time_window":
			c := TimeWindowCaveat{}
			if w.NotBefore != 0 {
				c.NotBefore = time.Unix(w.NotBefore, 0)
			}
			if w.NotAfter != 0 {
				c.NotAfter = time.Unix(w.NotAfter, 0)
			}
			caveats = append(caveats, c)
		case "call_limit":
			caveats = append(caveats, CallLimitCaveat{Limit: w.Limit, Used: w.Used})
		case "allowed_targets":
			c := AllowedTargetsCaveat{}
			for _, t := range w.Targets {
				c.Targets = append(c.Targets, common.HexToAddress(t))
			}
			caveats = append(caveats, c)
		case "allowed_methods":
			c := AllowedMethodsCaveat{}
			for _, s := range w.Selectors {
				raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
				if err != nil || len(raw) != 4 {
					return nil, fmt.Errorf("invalid selector %q in stored caveat", s)
				}
				var sel [4]byte
				copy(sel[:], raw)
				c.Selectors = append(c.Selectors, sel)
			}
			caveats = append(caveats, c)
		default:
			return nil, fmt.Errorf("unknown caveat kind %q in stored delegation", w.Kind)
		}
	}
	return caveats, nil
}
