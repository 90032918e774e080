package generator

import (
	"context"

	"monkeypress/internal/chunkstore"
)

// Emit is one generated character together with its absolute index.
type Emit struct {
	Index uint64
	Ch    byte
}

// Monkey draws letters from the deterministic stream and materializes them
// in the chunk store. Next is serialized by the generation loop; there is
// exactly one logical writer.
type Monkey struct {
	store *chunkstore.Store
	pos   uint64
}

// NewMonkey creates a Monkey resuming at the store's cursor, so the next
// character drawn is exactly the one a single uninterrupted run would have
// produced at that position.
func NewMonkey(store *chunkstore.Store) *Monkey {
	return &Monkey{store: store, pos: store.Cursor()}
}

// Next generates the character at the current position, appends it to the
// store, and advances. If the append fails the position does not advance,
// so the character is regenerated identically on retry.
func (m *Monkey) Next(ctx context.Context) (Emit, error) {
	ch := LetterAt(m.pos)
	idx, err := m.store.Append(ctx, ch)
	if err != nil {
		return Emit{}, err
	}
	m.pos++
	return Emit{Index: idx, Ch: ch}, nil
}
