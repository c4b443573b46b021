package backup

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/0xmhha/calmspace/pkg/kvstore"
)

// Export takes a point-in-time snapshot of every key in st.
func Export(st kvstore.Store) (Document, error) {
	snapshot, err := st.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot store: %w", err)
	}
	return Document(snapshot), nil
}

// Encode writes doc as a JSON object. encoding/json sorts map keys, so the
// output is stable for a given store.
func Encode(w io.Writer, doc Document) error {
	if doc == nil {
		doc = Document{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode backup: %w", err)
	}
	return nil
}

// WriteFile encodes doc to path, creating parent directories.
func WriteFile(path string, doc Document) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	var buf bytes.Buffer
	if err := Encode(&buf, doc); err != nil {
		return err
	}

	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write backup: %w", err)
	}
	return nil
}

// Decode parses and validates a backup document. The whole input must be
// one JSON object whose values are all strings.
func Decode(r io.Reader) (Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))

	var raw map[string]json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}
	if raw == nil {
		return nil, &ValidationError{Reason: "document must be a JSON object"}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &ValidationError{Reason: "unexpected data after the JSON object"}
	}

	doc := make(Document, len(raw))
	for k, v := range raw {
		if k == "" {
			return nil, &ValidationError{Key: k, Reason: "empty key"}
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return nil, &ValidationError{Key: k, Reason: "value must be a string"}
		}
		doc[k] = s
	}
	return doc, nil
}

// Restore writes every key of doc into st in one transaction.
func Restore(st kvstore.Store, doc Document) error {
	if len(doc) == 0 {
		return nil
	}
	if err := st.SetMany(doc); err != nil {
		return fmt.Errorf("failed to restore backup: %w", err)
	}
	return nil
}

// Import decodes a document from r and restores it. Nothing is written
// unless the whole document is valid.
func Import(st kvstore.Store, r io.Reader) (Document, error) {
	doc, err := Decode(r)
	if err != nil {
		return nil, err
	}
	if err := Restore(st, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// ReadFile imports the document stored at path into st.
func ReadFile(st kvstore.Store, path string) (Document, error) {
	f, err := os.Open(path) // nolint:gosec // path chosen by the user
	if err != nil {
		return nil, fmt.Errorf("failed to open backup: %w", err)
	}
	defer f.Close()

	return Import(st, f)
}
