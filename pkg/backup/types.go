// Package backup exports the whole store to one JSON document and
// restores it.
//
// The document is a flat JSON object mapping every key to its raw stored
// string. Values that are themselves JSON (usage, moods, ...) stay encoded
// exactly once, so export never double-encodes and import never
// double-decodes.
//
// Restore is a union: keys in the document overwrite live keys, keys
// absent from the document are left alone. A restored backup can
// therefore bring back entities deleted after it was taken.
package backup

// DefaultFileName is the suggested name of an exported document.
const DefaultFileName = "calmspace-backup.json"

// Document is a backup: key -> raw stored value.
type Document map[string]string

// Len returns the number of keys in the document.
func (d Document) Len() int {
	return len(d)
}
