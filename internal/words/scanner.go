package words

import (
	"context"
	"fmt"

	"monkeypress/internal/chunkstore"
)

// Rescan replays the detector over the stream between the word store's
// high-water mark and the chunk store's cursor, returning hits that were
// generated but never persisted — for example, hits detected after the last
// word flush but before the crash.
//
// Scanning starts MaxWordLen-1 characters before highWater so that any word
// ending at or after highWater has full left context; hits starting before
// highWater were already persisted and are filtered out.
func Rescan(ctx context.Context, store *chunkstore.Store, dict *Dictionary, highWater uint64) ([]Hit, error) {
	cursor := store.Cursor()
	if highWater >= cursor {
		return nil, nil
	}

	pos := uint64(0)
	if highWater > MaxWordLen-1 {
		pos = highWater - (MaxWordLen - 1)
	}

	detector := NewDetector(dict)
	var missed []Hit

	sliceLen := store.ChunkSize()
	for pos < cursor {
		text, err := store.ReadSlice(ctx, pos, sliceLen)
		if err != nil {
			return nil, fmt.Errorf("words: rescan read at %d: %w", pos, err)
		}
		if text == "" {
			break
		}
		for i := 0; i < len(text); i++ {
			hit, ok := detector.Push(text[i], pos)
			if ok && hit.Start >= highWater {
				missed = append(missed, hit)
			}
			pos++
		}
	}

	return missed, nil
}
