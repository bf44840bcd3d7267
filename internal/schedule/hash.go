package schedule

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// HashEmpty is the sentinel content hash for a payload with no windows.
//
// Keeping it as a readable marker (instead of the sha256 of an empty list)
// lets the checkers special-case "never saw a real schedule yet" when
// deciding whether a first notification should go out.
const HashEmpty = "NO_SCHEDULE_FOUND"

type hashWindow struct {
	Start string `json:"s"`
	End   string `json:"e"`
	Kind  string `json:"k"`
}

// Hash returns a stable content hash of the payload.
//
// The hash is computed over a canonical compact JSON form: windows sorted,
// times in RFC3339 UTC, fixed key order. Formatting noise and unstable slot
// order from the provider cannot flip it.
func Hash(p Payload) string {
	if p.Empty() {
		return HashEmpty
	}
	cp := p
	cp.Windows = append([]Window(nil), p.Windows...)
	cp.Normalize()

	ws := make([]hashWindow, 0, len(cp.Windows))
	for _, w := range cp.Windows {
		ws = append(ws, hashWindow{
			Start: w.Start.UTC().Format(time.RFC3339),
			End:   w.End.UTC().Format(time.RFC3339),
			Kind:  string(w.Kind),
		})
	}
	b, err := json.Marshal(ws)
	if err != nil {
		// Marshal of plain structs cannot realistically fail; keep a
		// deterministic fallback anyway.
		return HashEmpty
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
