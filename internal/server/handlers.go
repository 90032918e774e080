package server

import (
	"net/http"
	"strconv"
	"time"
)

// maxSliceChunks bounds a single /v1/chars read to this many chunks' worth
// of characters.
const maxSliceChunks = 16

// statusResponse is the body of GET /v1/status.
type statusResponse struct {
	Cursor         uint64 `json:"cursor"`
	Chunks         uint64 `json:"chunks"`
	DictionarySize int    `json:"dictionarySize"`
	Users          int    `json:"users"`
	CharsPerMinute int    `json:"charsPerMinute"`
	WordsDetected  int    `json:"wordsDetected"`
	UptimeSec      int64  `json:"uptimeSec"`
	Version        string `json:"version"`
}

// statsResponse is the body of GET /v1/stats.
type statsResponse struct {
	Users          int `json:"users"`
	CharsPerMinute int `json:"charsPerMinute"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Cursor:         s.chunks.Cursor(),
		Chunks:         s.chunks.ChunkCount(),
		DictionarySize: s.dict.Size(),
		Users:          s.engine.UsersOnline(),
		CharsPerMinute: s.engine.CharsPerMinute(),
		WordsDetected:  s.engine.WordCount(),
		UptimeSec:      int64(time.Since(s.started) / time.Second),
		Version:        Version,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statsResponse{
		Users:          s.engine.UsersOnline(),
		CharsPerMinute: s.engine.CharsPerMinute(),
	})
}

// handleChars serves an arbitrary slice of the generated text. The body may
// be shorter than requested when the slice extends past the cursor.
func (s *Server) handleChars(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	start, err := strconv.ParseUint(q.Get("start"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "start must be a non-negative integer")
		return
	}
	length, err := strconv.ParseUint(q.Get("len"), 10, 32)
	if err != nil || length == 0 {
		writeError(w, http.StatusBadRequest, "len must be a positive integer")
		return
	}
	if max := uint64(maxSliceChunks * s.chunks.ChunkSize()); length > max {
		writeError(w, http.StatusBadRequest, "len exceeds maximum of "+strconv.FormatUint(max, 10))
		return
	}

	text, err := s.chunks.ReadSlice(r.Context(), start, int(length))
	if err != nil {
		s.logger.Warn("slice read failed", "start", start, "len", length, "error", err)
		writeError(w, http.StatusInternalServerError, "read failed")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(text))
}
