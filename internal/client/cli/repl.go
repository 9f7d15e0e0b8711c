package cli

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	Generate(ctx context.Context, path, language, topic string) error
	History(ctx context.Context) error
	Delete(ctx context.Context, ts int64) error
	Undo(ctx context.Context) error
	Drain(ctx context.Context) error
	Status(ctx context.Context) error
}

const replHelp = `Available commands:
  generate <file> [language] [topic...]  generate hashtags for an image
  history                                list past generations
  delete <timestamp>                     remove a history entry
  undo                                   restore the last deleted entry
  drain                                  replay queued requests
  status                                 show connection and queue state
  exit                                   leave the program`

// runREPL starts a simple read–eval–print loop for the htgen CLI.
//
// It reads a line from the provided scanner, parses the first token as the
// command, and dispatches to methods on 'a'. Unknown commands are reported
// back to the user. The loop exits on scanner EOF or when the user types
// "exit" or "quit".
//
// Errors returned by command handlers are printed and the loop continues.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("htgen %s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var err error
		switch cmd {
		case "help", "?":
			printlnFn(replHelp)

		case "generate", "gen", "g":
			if len(args) == 0 {
				printlnFn("Usage: generate <file> [language] [topic...]")
				continue
			}
			var lang, topic string
			if len(args) > 1 {
				lang = args[1]
			}
			if len(args) > 2 {
				topic = strings.Join(args[2:], " ")
			}
			err = a.Generate(ctx, args[0], lang, topic)

		case "history", "h", "l", "list":
			err = a.History(ctx)

		case "delete", "rm":
			if len(args) == 0 {
				printlnFn("Usage: delete <timestamp>")
				continue
			}
			ts, perr := strconv.ParseInt(args[0], 10, 64)
			if perr != nil {
				printlnFn("Invalid timestamp:", args[0])
				continue
			}
			err = a.Delete(ctx, ts)

		case "undo":
			err = a.Undo(ctx)

		case "drain", "sync":
			err = a.Drain(ctx)

		case "status":
			err = a.Status(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if err != nil {
			printlnFn("Error:", err)
		}
	}
}
