package api

import (
	"encoding/hex"
	"strconv"

	"github.com/zeebo/blake3"
)

// Fingerprint returns a deterministic BLAKE3 hash of the cursor and groups.
// Group order is significant; UpdatedAt is not included.
func (s State) Fingerprint() string {
	h := blake3.New()

	h.Write([]byte(s.ConnectionID))
	h.Write([]byte{0})

	if id, ok := s.Cursor(); ok {
		h.Write([]byte(strconv.FormatInt(id, 10)))
	} else {
		h.Write([]byte{'-'})
	}
	h.Write([]byte{0})

	for _, g := range s.Groups {
		h.Write([]byte(g))
		h.Write([]byte{0})
	}
	h.Write([]byte{0}) // End of groups

	return hex.EncodeToString(h.Sum(nil))
}
