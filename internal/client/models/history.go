package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/htgen/internal/common"
)

// HistorySchemaVersion is the version written by EncodeHistory.
//
// Version 1 is the legacy layout: a bare JSON array of
// {timestamp, image, hashtags}. Version 2 wraps entries in a versioned
// document and adds language and topic.
const HistorySchemaVersion = 2

// HistoryEntry is one past generation. Timestamp is epoch milliseconds and is
// unique within a history.
type HistoryEntry struct {
	Timestamp int64    `json:"timestamp"`
	Image     string   `json:"image"`
	Hashtags  []string `json:"hashtags"`
	Language  string   `json:"language"`
	Topic     *string  `json:"topic,omitempty"`
}

// TopicValue returns the topic, or "" when there is none.
func (e HistoryEntry) TopicValue() string {
	if e.Topic == nil {
		return ""
	}
	return *e.Topic
}

// OptionalTopic trims s and returns nil for an empty result.
func OptionalTopic(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

type historyDocument struct {
	Version int            `json:"version"`
	Entries []HistoryEntry `json:"entries"`
}

type legacyEntry struct {
	Timestamp int64    `json:"timestamp"`
	Image     string   `json:"image"`
	Hashtags  []string `json:"hashtags"`
	Language  string   `json:"language"`
	Topic     *string  `json:"topic"`
}

// DecodeHistory parses a stored history document in insertion order,
// migrating older layouts. Empty input is an empty history.
func DecodeHistory(data []byte) ([]HistoryEntry, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return []HistoryEntry{}, nil
	}

	if data[0] == '[' {
		return migrateV1(data)
	}

	var head struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}

	switch {
	case head.Version == HistorySchemaVersion:
		var doc historyDocument
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode history: %w", err)
		}
		entries := doc.Entries
		if entries == nil {
			entries = []HistoryEntry{}
		}
		for i := range entries {
			entries[i].Topic = OptionalTopic(entries[i].TopicValue())
		}
		return entries, nil
	default:
		return nil, fmt.Errorf("%w: history version %d", common.ErrUnsupportedSchema, head.Version)
	}
}

func migrateV1(data []byte) ([]HistoryEntry, error) {
	var legacy []legacyEntry
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, fmt.Errorf("decode legacy history: %w", err)
	}

	entries := make([]HistoryEntry, 0, len(legacy))
	for _, l := range legacy {
		var topic string
		if l.Topic != nil {
			topic = *l.Topic
		}
		entries = append(entries, HistoryEntry{
			Timestamp: l.Timestamp,
			Image:     l.Image,
			Hashtags:  l.Hashtags,
			Language:  l.Language,
			Topic:     OptionalTopic(topic),
		})
	}
	return entries, nil
}

// EncodeHistory serializes entries (insertion order) at the current version.
func EncodeHistory(entries []HistoryEntry) ([]byte, error) {
	if entries == nil {
		entries = []HistoryEntry{}
	}
	return json.Marshal(historyDocument{Version: HistorySchemaVersion, Entries: entries})
}
