package model

import (
	"encoding/json"
)

// JournalEntry is the normalized record of one committed or rejected ledger
// operation.
type JournalEntry struct {
	ID         string            `json:"id"`
	Version    uint64            `json:"version"`
	Operation  string            `json:"operation"`
	Caller     string            `json:"caller"`
	Args       map[string]string `json:"args,omitempty"`
	Result     map[string]string `json:"result,omitempty"`
	ErrorCode  string            `json:"error_code,omitempty"`
	Error      string            `json:"error,omitempty"`
	RecordedAt string            `json:"recorded_at"`
}

// Committed reports whether the operation took effect.
func (e JournalEntry) Committed() bool {
	return e.ErrorCode == "" && e.Error == ""
}

// MarshalJSON ensures JournalEntry is encoded with stable field names.
func (e JournalEntry) MarshalJSON() ([]byte, error) {
	type Alias JournalEntry
	return json.Marshal(Alias(e))
}

// UnmarshalJSON decodes a JournalEntry from JSON.
func (e *JournalEntry) UnmarshalJSON(data []byte) error {
	type Alias JournalEntry
	var a Alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*e = JournalEntry(a)
	return nil
}
