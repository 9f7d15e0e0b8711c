package models

import (
	"net/http"
	"time"
)

// CacheEntry is a captured static-asset response stored under a versioned
// cache name and keyed by request URL.
type CacheEntry struct {
	CacheName string
	URL       string
	Status    int
	Header    http.Header
	Body      []byte
	StoredAt  time.Time
}
