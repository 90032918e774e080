// Package generator produces the deterministic letter stream.
//
// The n-th character is a pure function of n: a SplitMix64 mix of the
// position under a fixed seed, reduced to a lowercase letter. Because the
// PRNG is counter-based, resuming at any position is O(1) — a restart sets
// the counter to the persisted cursor and the stream continues without a
// seam.
package generator

// streamSeed fixes the character stream for all time. Changing it changes
// every character ever generated, so it never changes.
const streamSeed uint64 = 0xA24BAED4963EE407

// letters is the output alphabet.
const letters = "abcdefghijklmnopqrstuvwxyz"

// mix64 is the SplitMix64 finalizer.
func mix64(z uint64) uint64 {
	z ^= z >> 30
	z *= 0xBF58476D1CE4E5B9
	z ^= z >> 27
	z *= 0x94D049BB133111EB
	z ^= z >> 31
	return z
}

// LetterAt returns the character at absolute stream position pos.
func LetterAt(pos uint64) byte {
	z := mix64(streamSeed + pos*0x9E3779B97F4A7C15)
	return letters[z%26]
}
