// Package words recognizes dictionary words in the letter stream and
// persists the hits.
//
// The Detector finds the longest dictionary word ending at each appended
// character; the Store batches hits into the backend and tracks the
// high-water mark of persisted positions; Rescan replays the gap between
// the high-water mark and the cursor after a restart.
package words

import (
	"bufio"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
)

// Word length bounds. Entries outside [MinWordLen, MaxWordLen] are dropped
// at load time; the detector window never needs more than MaxWordLen
// characters.
const (
	MinWordLen = 3
	MaxWordLen = 12
)

//go:embed dictionary.txt
var embeddedDictionary string

// Dictionary is an immutable set of lowercase words. It is loaded once at
// startup; there are no runtime updates.
type Dictionary struct {
	words map[string]struct{}
}

// LoadDictionary reads a newline-delimited word list. Entries are
// lowercased; entries outside the length bounds or containing characters
// other than a-z are skipped.
func LoadDictionary(r io.Reader) (*Dictionary, error) {
	d := &Dictionary{words: make(map[string]struct{})}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		word := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if len(word) < MinWordLen || len(word) > MaxWordLen {
			continue
		}
		if !isLowerAlpha(word) {
			continue
		}
		d.words[word] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read dictionary: %w", err)
	}
	return d, nil
}

// LoadDictionaryFile loads a dictionary from a file on disk.
func LoadDictionaryFile(path string) (*Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dictionary: %w", err)
	}
	defer f.Close()
	return LoadDictionary(f)
}

// DefaultDictionary loads the word list embedded in the binary.
func DefaultDictionary() (*Dictionary, error) {
	return LoadDictionary(strings.NewReader(embeddedDictionary))
}

// Has reports whether word is in the dictionary.
func (d *Dictionary) Has(word string) bool {
	_, ok := d.words[word]
	return ok
}

// Size returns the number of entries.
func (d *Dictionary) Size() int { return len(d.words) }

func isLowerAlpha(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 'a' || s[i] > 'z' {
			return false
		}
	}
	return true
}
