// Package knowledge manages the two mutable document sets that feed the
// system context: knowledge sources and letter templates.
package knowledge

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode/utf8"
)

// ErrEmptyContent is returned when extraction produces no usable text.
var ErrEmptyContent = errors.New("empty or unextractable content")

// Document is a named block of extracted text. Names are unique within
// a set.
type Document struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// Extractor converts an uploaded file into plain text. Per-format
// readers (PDF, spreadsheets, word processors) live behind this single
// capability.
type Extractor interface {
	ExtractText(name string, r io.Reader) (string, error)
}

// PlainTextExtractor reads the file verbatim as UTF-8 text.
type PlainTextExtractor struct {
	// MaxBytes caps how much is read; zero means no cap.
	MaxBytes int64
}

// ExtractText implements Extractor.
func (e PlainTextExtractor) ExtractText(name string, r io.Reader) (string, error) {
	if e.MaxBytes > 0 {
		r = io.LimitReader(r, e.MaxBytes)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" || !utf8.ValidString(text) {
		return "", fmt.Errorf("extract %s: %w", name, ErrEmptyContent)
	}
	return text, nil
}

// Set is a collection of documents keyed by name.
type Set struct {
	mu   sync.RWMutex
	docs []Document
}

// NewSet returns an empty document set.
func NewSet() *Set {
	return &Set{}
}

// Add inserts a document. A document whose name collides with an
// existing one is silently dropped; Add reports whether the set changed.
func (s *Set) Add(doc Document) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.docs {
		if d.Name == doc.Name {
			return false
		}
	}
	s.docs = append(s.docs, doc)
	return true
}

// Remove deletes the document with the given name.
func (s *Set) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, d := range s.docs {
		if d.Name == name {
			s.docs = append(s.docs[:i], s.docs[i+1:]...)
			return true
		}
	}
	return false
}

// Clear removes every document.
func (s *Set) Clear() {
	s.mu.Lock()
	s.docs = nil
	s.mu.Unlock()
}

// Get returns the named document.
func (s *Set) Get(name string) (Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.docs {
		if d.Name == name {
			return d, true
		}
	}
	return Document{}, false
}

// Documents returns the documents in insertion order.
func (s *Set) Documents() []Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Document, len(s.docs))
	copy(out, s.docs)
	return out
}

// Replace swaps the full contents of the set, preserving the order of
// the given documents. Used when loading from the persistence store.
func (s *Set) Replace(docs []Document) {
	s.mu.Lock()
	s.docs = make([]Document, len(docs))
	copy(s.docs, docs)
	s.mu.Unlock()
}

// Len returns the number of documents.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
