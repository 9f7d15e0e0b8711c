// Package client contains the client-side network boundary and local
// persistence bootstrap for htgen.
//
// # Overview
//
// The package provides:
//  1. The Client contract used by the submission pipeline and the
//     connectivity reconciler: Generate, Ping and Close.
//  2. HTTPClient, which posts multipart uploads to the generation service
//     through an injected http.RoundTripper (normally the worker), decodes
//     the {hashtags}/{error} reply and sanitizes returned tags.
//  3. Local persistence bootstrap (InitDatabase, RunMigrations,
//     NewRepositories) wiring SQLite and the embedded goose migrations.
//
// # Error Handling
//
// Failures map onto sentinel errors matched with errors.Is:
// common.ErrNetwork for transport failures, common.ErrService for an
// upstream {error} reply, ErrQueued when the worker queued the upload, and
// ErrUnavailable when Ping cannot reach the server.
package client
