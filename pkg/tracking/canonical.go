package tracking

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// Canonical returns the canonical JSON serialization of a Bundle: a list of
// {path, text} entries sorted by path, encoded by json.Marshal (which
// escapes <, > and &), used both as the input to the ValidationRecord cache
// key (Hash) and as dedup's diff input.
func Canonical(b Bundle) (string, error) {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([]struct {
		Path string `json:"path"`
		Text string `json:"text"`
	}, len(keys))
	for i, k := range keys {
		ordered[i].Path = k
		ordered[i].Text = b[k]
	}

	data, err := json.Marshal(ordered)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Hash returns the sha256 hex digest of the bundle's canonical
// serialization, used as the ValidationRecord cache key.
func Hash(b Bundle) (string, error) {
	canon, err := Canonical(b)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(canon))
	return hex.EncodeToString(sum[:]), nil
}
