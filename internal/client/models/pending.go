package models

import (
	"encoding/json"
	"fmt"
)

// PendingSchemaVersion is stamped on every queued request row.
const PendingSchemaVersion = 1

// Header is one name/value pair. Order and duplicates are preserved, so a
// request's headers are stored as a list rather than a map.
type Header struct {
	Name  string
	Value string
}

// MarshalJSON encodes the header as a two-element array: ["name","value"].
func (h Header) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{h.Name, h.Value})
}

func (h *Header) UnmarshalJSON(b []byte) error {
	var pair []string
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("header pair must have 2 elements, got %d", len(pair))
	}
	h.Name, h.Value = pair[0], pair[1]
	return nil
}

// PendingRequest is a mutating request that failed while offline and waits
// for replay. Body is nil for GET.
type PendingRequest struct {
	ID          int64
	URL         string
	Method      string
	Headers     []Header
	Mode        string
	Credentials string
	Cache       string
	Redirect    string
	Referrer    string
	Body        []byte
}
