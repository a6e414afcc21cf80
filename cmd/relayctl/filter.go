package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/nbd-wtf/go-nostr"
	"github.com/urfave/cli/v2"
)

const CategoryFilterAttributes = "FILTER ATTRIBUTES"

var filterFlags = []cli.Flag{
	&cli.StringSliceFlag{
		Name:     "author",
		Aliases:  []string{"a"},
		Usage:    "only accept events from these authors (pubkey as hex)",
		Category: CategoryFilterAttributes,
	},
	&cli.StringSliceFlag{
		Name:     "id",
		Aliases:  []string{"i"},
		Usage:    "only accept events with these ids (hex)",
		Category: CategoryFilterAttributes,
	},
	&cli.IntSliceFlag{
		Name:     "kind",
		Aliases:  []string{"k"},
		Usage:    "only accept events with these kind numbers",
		Category: CategoryFilterAttributes,
	},
	&cli.StringSliceFlag{
		Name:     "tag",
		Aliases:  []string{"t"},
		Usage:    "takes a tag like -t e=<id>, only accept events with these tags",
		Category: CategoryFilterAttributes,
	},
	&cli.StringFlag{
		Name:     "since",
		Usage:    "only accept events newer than this (unix timestamp)",
		Category: CategoryFilterAttributes,
	},
	&cli.StringFlag{
		Name:     "until",
		Aliases:  []string{"u"},
		Usage:    "only accept events older than this (unix timestamp)",
		Category: CategoryFilterAttributes,
	},
	&cli.IntFlag{
		Name:     "limit",
		Aliases:  []string{"l"},
		Usage:    "only accept up to this number of events",
		Category: CategoryFilterAttributes,
	},
	&cli.StringFlag{
		Name:     "search",
		Usage:    "a NIP-50 search query, use it only with relays that explicitly support it",
		Category: CategoryFilterAttributes,
	},
}

// overridden by tests
var stdinIsPiped = isPiped

func isPiped() bool {
	stat, err := os.Stdin.Stat()
	return err == nil && stat.Mode()&os.ModeCharDevice == 0
}

// stdinFilter reads a base filter from the first line of piped stdin.
func stdinFilter() (f nostr.Filter, err error) {
	if !stdinIsPiped() {
		return
	}
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 16*1024), 256*1024)
	if !scanner.Scan() {
		return f, scanner.Err()
	}
	line := strings.TrimSpace(scanner.Text())
	if line == "" {
		return
	}
	if err = json.Unmarshal([]byte(line), &f); err != nil {
		return f, fmt.Errorf("invalid filter from stdin: %w", err)
	}
	return
}

// applyFilterFlags adds the filter attributes given on the command line to
// f.
func applyFilterFlags(c *cli.Context, f *nostr.Filter) (err error) {
	f.Authors = append(f.Authors, c.StringSlice("author")...)
	f.IDs = append(f.IDs, c.StringSlice("id")...)
	f.Kinds = append(f.Kinds, c.IntSlice("kind")...)
	for _, tagFlag := range c.StringSlice("tag") {
		spl := strings.SplitN(tagFlag, "=", 2)
		if len(spl) != 2 || spl[0] == "" {
			return fmt.Errorf("invalid --tag '%s'", tagFlag)
		}
		if f.Tags == nil {
			f.Tags = make(nostr.TagMap)
		}
		f.Tags[spl[0]] = append(f.Tags[spl[0]], spl[1])
	}
	for _, bound := range []struct {
		name string
		dst  **nostr.Timestamp
	}{{"since", &f.Since}, {"until", &f.Until}} {
		if v := c.String(bound.name); v != "" {
			var i int64
			if i, err = strconv.ParseInt(v, 10, 64); err != nil {
				return fmt.Errorf("invalid --%s '%s'", bound.name, v)
			}
			ts := nostr.Timestamp(i)
			*bound.dst = &ts
		}
	}
	if limit := c.Int("limit"); limit > 0 {
		f.Limit = limit
	}
	if search := c.String("search"); search != "" {
		f.Search = search
	}
	return
}

func buildFilter(c *cli.Context) (f nostr.Filter, err error) {
	if f, err = stdinFilter(); err != nil {
		return
	}
	err = applyFilterFlags(c, &f)
	return
}
