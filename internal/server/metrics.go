package server

import (
	"fmt"
	"net/http"
	"time"
)

// registerMetrics registers the /metrics endpoint for Prometheus scraping.
// This endpoint is unauthenticated (standard for Prometheus targets).
func (s *Server) registerMetrics(mux *http.ServeMux) {
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		s.writeMetrics(w)
	})
}

func (s *Server) writeMetrics(w http.ResponseWriter) {
	_, _ = fmt.Fprintf(w, "# HELP monkeypress_info Server version and metadata.\n")
	_, _ = fmt.Fprintf(w, "# TYPE monkeypress_info gauge\n")
	_, _ = fmt.Fprintf(w, "monkeypress_info{version=%q} 1\n", Version)

	_, _ = fmt.Fprintf(w, "# HELP monkeypress_up Whether generation is running.\n")
	_, _ = fmt.Fprintf(w, "# TYPE monkeypress_up gauge\n")
	if s.engine.Healthy() {
		_, _ = fmt.Fprintf(w, "monkeypress_up 1\n")
	} else {
		_, _ = fmt.Fprintf(w, "monkeypress_up 0\n")
	}

	_, _ = fmt.Fprintf(w, "# HELP monkeypress_uptime_seconds Seconds since server start.\n")
	_, _ = fmt.Fprintf(w, "# TYPE monkeypress_uptime_seconds gauge\n")
	_, _ = fmt.Fprintf(w, "monkeypress_uptime_seconds %.0f\n", time.Since(s.started).Seconds())

	_, _ = fmt.Fprintf(w, "# HELP monkeypress_cursor_position Total characters generated.\n")
	_, _ = fmt.Fprintf(w, "# TYPE monkeypress_cursor_position counter\n")
	_, _ = fmt.Fprintf(w, "monkeypress_cursor_position %d\n", s.chunks.Cursor())

	_, _ = fmt.Fprintf(w, "# HELP monkeypress_chunks_total Chunks materialized so far.\n")
	_, _ = fmt.Fprintf(w, "# TYPE monkeypress_chunks_total gauge\n")
	_, _ = fmt.Fprintf(w, "monkeypress_chunks_total %d\n", s.chunks.ChunkCount())

	_, _ = fmt.Fprintf(w, "# HELP monkeypress_subscribers Connected stream subscribers.\n")
	_, _ = fmt.Fprintf(w, "# TYPE monkeypress_subscribers gauge\n")
	_, _ = fmt.Fprintf(w, "monkeypress_subscribers %d\n", s.engine.Subscribers())

	_, _ = fmt.Fprintf(w, "# HELP monkeypress_users_online Audience size driving the generation rate.\n")
	_, _ = fmt.Fprintf(w, "# TYPE monkeypress_users_online gauge\n")
	_, _ = fmt.Fprintf(w, "monkeypress_users_online %d\n", s.engine.UsersOnline())

	_, _ = fmt.Fprintf(w, "# HELP monkeypress_chars_per_minute Current nominal throughput.\n")
	_, _ = fmt.Fprintf(w, "# TYPE monkeypress_chars_per_minute gauge\n")
	_, _ = fmt.Fprintf(w, "monkeypress_chars_per_minute %d\n", s.engine.CharsPerMinute())

	_, _ = fmt.Fprintf(w, "# HELP monkeypress_words_detected_total Dictionary words detected.\n")
	_, _ = fmt.Fprintf(w, "# TYPE monkeypress_words_detected_total counter\n")
	_, _ = fmt.Fprintf(w, "monkeypress_words_detected_total %d\n", s.engine.WordCount())

	_, _ = fmt.Fprintf(w, "# HELP monkeypress_dictionary_size Words in the active dictionary.\n")
	_, _ = fmt.Fprintf(w, "# TYPE monkeypress_dictionary_size gauge\n")
	_, _ = fmt.Fprintf(w, "monkeypress_dictionary_size %d\n", s.dict.Size())
}
