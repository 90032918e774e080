package words

// Detector is the sliding-window longest-match recognizer. It emits at most
// one hit per pushed character: the longest dictionary word ending at that
// character. The caller supplies absolute positions; the detector holds no
// cursor of its own.
//
// Hits from different positions may overlap ("scats" yields "cat", "scat"
// and "cats"); deduplication for display is a client concern.
type Detector struct {
	dict   *Dictionary
	window []byte
}

// NewDetector creates a detector over dict with an empty window.
func NewDetector(dict *Dictionary) *Detector {
	return &Detector{
		dict:   dict,
		window: make([]byte, 0, MaxWordLen),
	}
}

// Push appends ch (at absolute stream position pos) to the window and
// reports the longest dictionary word ending at pos, if any.
func (d *Detector) Push(ch byte, pos uint64) (Hit, bool) {
	if len(d.window) == MaxWordLen {
		copy(d.window, d.window[1:])
		d.window = d.window[:MaxWordLen-1]
	}
	d.window = append(d.window, ch)

	for n := len(d.window); n >= MinWordLen; n-- {
		candidate := string(d.window[len(d.window)-n:])
		if d.dict.Has(candidate) {
			return Hit{Start: pos - uint64(n) + 1, Len: n, Word: candidate}, true
		}
	}
	return Hit{}, false
}

// Reset clears the window.
func (d *Detector) Reset() {
	d.window = d.window[:0]
}
