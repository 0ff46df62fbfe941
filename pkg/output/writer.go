// Package output writes a run as Singer JSON-lines messages.
//
// Every record becomes a RECORD message and every checkpoint a STATE message
// carrying the bookmarks of all streams seen so far:
//
//	{"type":"RECORD","stream":"returns","record":{...},"time_extracted":"2024-01-03T00:00:00Z"}
//	{"type":"STATE","value":{"bookmarks":{"returns":{"replication_key_value":"2024-01-03T00:00:00Z"}}}}
package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Sternrassler/tap-loopreturns/pkg/state"
)

// Message types.
const (
	TypeRecord = "RECORD"
	TypeState  = "STATE"
	TypeSchema = "SCHEMA"
)

// Message is one line of output.
type Message struct {
	Type          string          `json:"type"`
	Stream        string          `json:"stream,omitempty"`
	Record        map[string]any  `json:"record,omitempty"`
	TimeExtracted string          `json:"time_extracted,omitempty"`
	Value         *state.Document `json:"value,omitempty"`

	// SCHEMA only
	Schema             map[string]any `json:"schema,omitempty"`
	KeyProperties      []string       `json:"key_properties,omitempty"`
	BookmarkProperties []string       `json:"bookmark_properties,omitempty"`
}

// Writer emits messages to an underlying writer, one JSON object per line.
// It is safe for concurrent use.
type Writer struct {
	mu        sync.Mutex
	out       *bufio.Writer
	enc       *json.Encoder
	bookmarks map[string]state.Bookmark

	// now is replaced in tests
	now func() time.Time
}

// NewWriter creates a writer on w.
func NewWriter(w io.Writer) *Writer {
	out := bufio.NewWriter(w)
	return &Writer{
		out:       out,
		enc:       json.NewEncoder(out),
		bookmarks: make(map[string]state.Bookmark),
		now:       time.Now,
	}
}

// Seed makes the bookmarks of doc part of every following STATE message.
func (w *Writer) Seed(doc *state.Document) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for stream, b := range doc.Bookmarks {
		w.bookmarks[stream] = b
	}
}

// WriteSchema emits a SCHEMA message for a stream.
func (w *Writer) WriteSchema(stream string, schema map[string]any, keys []string, bookmarkKey string) error {
	msg := Message{
		Type:          TypeSchema,
		Stream:        stream,
		Schema:        schema,
		KeyProperties: keys,
	}
	if bookmarkKey != "" {
		msg.BookmarkProperties = []string{bookmarkKey}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.write(msg, false)
}

// WriteRecord emits a RECORD message. Records are buffered until the next
// STATE message or Flush.
func (w *Writer) WriteRecord(stream string, record map[string]any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.write(Message{
		Type:          TypeRecord,
		Stream:        stream,
		Record:        record,
		TimeExtracted: w.now().UTC().Format(time.RFC3339),
	}, false)
}

// WriteState records bookmark for stream and emits a STATE message with all
// known bookmarks. Output is flushed so that every record preceding the state
// has been delivered.
func (w *Writer) WriteState(stream string, bookmark state.Bookmark) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.bookmarks[stream] = bookmark

	doc := &state.Document{Bookmarks: make(map[string]state.Bookmark, len(w.bookmarks))}
	for name, b := range w.bookmarks {
		doc.Bookmarks[name] = b
	}

	return w.write(Message{Type: TypeState, Value: doc}, true)
}

// Flush writes any buffered output.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.out.Flush()
}

func (w *Writer) write(msg Message, flush bool) error {
	if err := w.enc.Encode(msg); err != nil {
		return fmt.Errorf("write %s message: %w", msg.Type, err)
	}
	if flush {
		if err := w.out.Flush(); err != nil {
			return fmt.Errorf("flush output: %w", err)
		}
	}
	return nil
}
