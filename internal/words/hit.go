package words

import "fmt"

// Hit is a detected dictionary word: the substring of the stream at
// [Start, Start+Len) equals Word. (Start, Len) is the identity for
// deduplication; writing the same hit twice collapses to one document.
type Hit struct {
	Start uint64 `json:"start" msgpack:"start"`
	Len   int    `json:"len" msgpack:"len"`
	Word  string `json:"word" msgpack:"word"`
}

// DocID returns the backend document ID for the hit. It is a pure function
// of (Start, Len), which is what makes persisted hits idempotent across
// restarts and replays.
func (h Hit) DocID() string {
	return fmt.Sprintf("word_%d_%d", h.Start, h.Len)
}

// End returns one past the last position covered by the hit.
func (h Hit) End() uint64 {
	return h.Start + uint64(h.Len)
}
