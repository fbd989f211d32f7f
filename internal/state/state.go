package state

import (
	"encoding/json"

	"github.com/automationz/moddeployd/internal/fingerprint"
)

// Record is the persisted status of one watched mod: the fingerprint seen at
// the most recent scan, when a change was last detected, and the fingerprint
// that was last successfully deployed. A missing Deployed means the mod has
// never been deployed.
type Record struct {
	Current    *fingerprint.Fingerprint `json:"fp"`
	LastChange int64                    `json:"last_change"`
	Deployed   *fingerprint.Fingerprint `json:"deployed_fp"`
}

// UnmarshalJSON upgrades legacy records on load. Early state files stored a
// bare fingerprint object per mod; those decode into a Record whose current
// and deployed fingerprints are both that value, with no change timestamp.
// Change timestamps written with fractional seconds truncate to whole ones.
func (r *Record) UnmarshalJSON(data []byte) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}

	if _, ok := probe["fp"]; ok {
		var raw struct {
			Current    *fingerprint.Fingerprint `json:"fp"`
			LastChange float64                  `json:"last_change"`
			Deployed   *fingerprint.Fingerprint `json:"deployed_fp"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		*r = Record{Current: raw.Current, LastChange: int64(raw.LastChange), Deployed: raw.Deployed}
		return nil
	}

	var fp fingerprint.Fingerprint
	if err := json.Unmarshal(data, &fp); err != nil {
		return err
	}
	current, deployed := fp, fp
	*r = Record{Current: &current, LastChange: 0, Deployed: &deployed}
	return nil
}

func cloneFingerprint(fp *fingerprint.Fingerprint) *fingerprint.Fingerprint {
	if fp == nil {
		return nil
	}
	c := *fp
	return &c
}

// clone returns a deep copy safe to hand out to callers.
func (r *Record) clone() Record {
	return Record{
		Current:    cloneFingerprint(r.Current),
		LastChange: r.LastChange,
		Deployed:   cloneFingerprint(r.Deployed),
	}
}
