// Package cli provides the htgen command-line client.
//
// It wires configuration, the local SQLite store, the request worker, the
// API client and the connectivity reconciler, and exposes them as cobra
// subcommands:
//
//	generate <image> [-l lang] [-t topic]
//	history
//	delete <timestamp> [-y]
//	drain
//	status
//	serve
//	repl
//	version
//
// The repl subcommand starts an interactive loop (see runREPL) that also
// supports undo of deletions made in the same session.
package cli
