package engine

import "monkeypress/internal/words"

// Event is a message delivered to subscribers. The concrete types form a
// closed set: Snapshot once at connect, then Char and Word live.
type Event interface {
	isEvent()
}

// Char is one generated character.
type Char struct {
	Index uint64 `json:"index"`
	Ch    string `json:"ch"`
}

// Word is a detected dictionary word.
type Word words.Hit

// Snapshot is the initial state delivered to a new subscriber: the index of
// the next character it will observe live, and every hit detected so far.
type Snapshot struct {
	Cursor uint64
	Words  []words.Hit
}

func (Char) isEvent()     {}
func (Word) isEvent()     {}
func (Snapshot) isEvent() {}
