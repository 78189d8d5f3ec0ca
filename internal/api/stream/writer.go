// Package stream writes query results to HTTP responses as a JSON array.
package stream

import (
	"fmt"
	"net/http"

	"go.mongodb.org/mongo-driver/bson"

	domainerrors "github.com/unifiedui/docdb-gateway/internal/domain/errors"
)

// HeaderEffectiveLimit carries the limit the query actually ran with.
const HeaderEffectiveLimit = "X-Effective-Limit"

// Source yields documents one at a time.
type Source interface {
	Next() bool
	Document() bson.Raw
	Err() error
}

// JSONArrayWriter streams documents as "[doc,doc,...]".
//
// Nothing is written until the first document (or the end of an empty
// result) has been pulled, so failures before that point can still be
// answered with a proper status code.
type JSONArrayWriter struct {
	writer    http.ResponseWriter
	flusher   http.Flusher
	headers   map[string]string
	committed bool
}

// NewJSONArrayWriter creates a writer over w.
func NewJSONArrayWriter(w http.ResponseWriter) *JSONArrayWriter {
	flusher, _ := w.(http.Flusher)
	return &JSONArrayWriter{
		writer:  w,
		flusher: flusher,
		headers: make(map[string]string),
	}
}

// SetHeader adds a header that is sent when the response is committed.
func (s *JSONArrayWriter) SetHeader(key, value string) {
	s.headers[key] = value
}

// Committed reports whether the status line has been sent.
func (s *JSONArrayWriter) Committed() bool {
	return s.committed
}

// Stream drains src into the response and returns the number of documents
// written. An error returned before anything was committed is src's own
// error; after that it is a StreamingFault and the body is incomplete.
func (s *JSONArrayWriter) Stream(src Source) (int, error) {
	if !src.Next() {
		if err := src.Err(); err != nil {
			return 0, err
		}
		s.commit()
		if err := s.write([]byte("[]")); err != nil {
			return 0, domainerrors.NewStreamingFault(0, err)
		}
		return 0, nil
	}

	s.commit()
	written := 0
	buf := make([]byte, 0, 4096)
	for {
		buf = buf[:0]
		if written == 0 {
			buf = append(buf, '[')
		} else {
			buf = append(buf, ',')
		}

		doc, err := bson.MarshalExtJSONAppend(buf, src.Document(), false, false)
		if err != nil {
			return written, domainerrors.NewStreamingFault(written, fmt.Errorf("encoding document: %w", err))
		}
		buf = doc
		if err := s.write(buf); err != nil {
			return written, domainerrors.NewStreamingFault(written, err)
		}
		written++

		if !src.Next() {
			break
		}
	}

	if err := src.Err(); err != nil {
		return written, domainerrors.NewStreamingFault(written, err)
	}
	if err := s.write([]byte("]")); err != nil {
		return written, domainerrors.NewStreamingFault(written, err)
	}
	return written, nil
}

func (s *JSONArrayWriter) commit() {
	h := s.writer.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	h.Set("X-Content-Type-Options", "nosniff")
	for k, v := range s.headers {
		h.Set(k, v)
	}
	s.writer.WriteHeader(http.StatusOK)
	s.committed = true
}

func (s *JSONArrayWriter) write(p []byte) error {
	if _, err := s.writer.Write(p); err != nil {
		return fmt.Errorf("writing response: %w", err)
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}
