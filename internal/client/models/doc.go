// Package models defines the client-side records persisted by htgen: history
// entries, queued requests, cached assets, and the notification envelope sent
// to UI surfaces.
package models
