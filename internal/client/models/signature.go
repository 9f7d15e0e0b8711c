package models

import (
	"strings"

	"github.com/dmitrijs2005/htgen/internal/cryptox"
)

// Signature identifies a submission for deduplication: the encoded image,
// the language and the trimmed topic. An absent topic and an empty topic are
// the same identity.
type Signature struct {
	Image    string
	Language string
	Topic    string
}

func NewSignature(image, language, topic string) Signature {
	return Signature{Image: image, Language: language, Topic: strings.TrimSpace(topic)}
}

// Matches compares the full triple against a stored entry.
func (s Signature) Matches(e HistoryEntry) bool {
	return e.Image == s.Image &&
		e.Language == s.Language &&
		strings.TrimSpace(e.TopicValue()) == s.Topic
}

// Digest is a short stable identifier for logs and correlation headers.
func (s Signature) Digest() string {
	return cryptox.Digest([]byte(s.Image), []byte(s.Language), []byte(s.Topic))
}
