// LOCATION: cmd/ringstorectl/repl.go

package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	prompt "github.com/c-bata/go-prompt"

	"github.com/ag-botkit/ringstore/internal/client"
)

// seriesCacheTTL bounds how often the completer hits the server for
// series names.
const seriesCacheTTL = 2 * time.Second

var commandSuggestions = []prompt.Suggest{
	{Text: "series", Description: "list all series"},
	{Text: "info", Description: "describe one series"},
	{Text: "last", Description: "newest points of a series"},
	{Text: "range", Description: "points within a time range"},
	{Text: "stats", Description: "server statistics"},
	{Text: "live", Description: "stream points as they arrive"},
	{Text: "feed", Description: "push demo metrics"},
	{Text: "help", Description: "show help"},
	{Text: "exit", Description: "leave the session"},
}

// repl owns the interactive session state: the shared client plus a
// short-lived cache of series names for completion.
type repl struct {
	c *client.Client

	mu      sync.Mutex
	names   []string
	fetched time.Time
}

func runREPL(c *client.Client) {
	r := &repl{c: c}

	fmt.Printf("ringstorectl %s interactive session ('help' for commands, 'exit' to leave)\n", Version)

	p := prompt.New(
		r.execute,
		r.complete,
		prompt.OptionTitle("ringstorectl"),
		prompt.OptionPrefix("ringstore> "),
		prompt.OptionPrefixTextColor(prompt.Cyan),
		prompt.OptionSetExitCheckerOnInput(func(in string, breakline bool) bool {
			in = strings.TrimSpace(in)
			return breakline && (in == "exit" || in == "quit")
		}),
	)
	p.Run()
}

func (r *repl) execute(in string) {
	fields := strings.Fields(in)
	if len(fields) == 0 {
		return
	}
	switch fields[0] {
	case "exit", "quit":
		// The exit checker ends the session after this returns.
		return
	}

	if err := dispatch(r.c, fields[0], fields[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
}

func (r *repl) complete(d prompt.Document) []prompt.Suggest {
	text := d.TextBeforeCursor()
	args := strings.Fields(text)
	word := d.GetWordBeforeCursor()

	// Still typing the command itself.
	if len(args) == 0 || (len(args) == 1 && !strings.HasSuffix(text, " ")) {
		return prompt.FilterHasPrefix(commandSuggestions, word, true)
	}

	onFirstArg := (len(args) == 1 && strings.HasSuffix(text, " ")) ||
		(len(args) == 2 && !strings.HasSuffix(text, " "))

	switch args[0] {
	case "info", "last", "range":
		if onFirstArg {
			return prompt.FilterHasPrefix(r.seriesSuggestions(), word, true)
		}
	case "live":
		// Every live argument is a series name.
		return prompt.FilterHasPrefix(r.seriesSuggestions(), word, true)
	}
	return nil
}

// seriesSuggestions returns completion entries for the server's series,
// refreshing the cache when it has gone stale. Failures leave the old
// names in place; completion is best effort.
func (r *repl) seriesSuggestions() []prompt.Suggest {
	r.mu.Lock()
	defer r.mu.Unlock()

	if time.Since(r.fetched) > seriesCacheTTL {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		infos, err := r.c.Series(ctx)
		cancel()
		if err == nil {
			r.names = r.names[:0]
			for _, info := range infos {
				r.names = append(r.names, info.Name)
			}
			r.fetched = time.Now()
		}
	}

	suggestions := make([]prompt.Suggest, len(r.names))
	for i, name := range r.names {
		suggestions[i] = prompt.Suggest{Text: name}
	}
	return suggestions
}
