package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"paraScope/internal/storage"
)

var (
	tailCyan   = color.New(color.FgCyan).SprintFunc()
	tailGreen  = color.New(color.FgGreen).SprintFunc()
	tailYellow = color.New(color.FgYellow).SprintFunc()
	tailRed    = color.New(color.FgRed).SprintFunc()
	tailDim    = color.New(color.Faint).SprintFunc()
	tailBold   = color.New(color.Bold).SprintFunc()
)

const followPoll = 500 * time.Millisecond

// tailLink, tailItem and tailRecord read only what tail prints from the
// JSONL record stream.
type tailLink struct {
	Key  string `json:"key"`
	Kind string `json:"kind"`
}

type tailItem struct {
	URL        string     `json:"url"`
	Pallet     string     `json:"pallet"`
	Variant    string     `json:"variant"`
	Success    string     `json:"success"`
	StartLinks []tailLink `json:"start_links"`
	EndLinks   []tailLink `json:"end_links"`
	Details    struct {
		Failed bool `json:"failed"`
	} `json:"details"`
}

type tailRecord struct {
	Kind  string `json:"kind"`
	Epoch uint64 `json:"epoch"`
	Chain *struct {
		URL      string `json:"url"`
		Name     string `json:"name"`
		Endpoint string `json:"endpoint"`
	} `json:"chain"`
	Block *struct {
		URL        string     `json:"url"`
		Timestamp  *uint64    `json:"timestamp"`
		Extrinsics []tailItem `json:"extrinsics"`
		Events     []tailItem `json:"events"`
		Errors     []struct {
			Kind  string `json:"kind"`
			Error string `json:"error"`
		} `json:"errors"`
	} `json:"block"`
}

type tailOptions struct {
	linksOnly bool
}

func runTail(cmd *cobra.Command, args []string) error {
	follow, _ := cmd.Flags().GetBool("follow")
	linksOnly, _ := cmd.Flags().GetBool("links")
	noColor, _ := cmd.Flags().GetBool("no-color")
	if noColor {
		color.NoColor = true
	}

	w := cmd.OutOrStdout()
	opts := tailOptions{linksOnly: linksOnly}
	handle := func(line []byte) error {
		if len(bytes.TrimSpace(line)) == 0 {
			return nil
		}
		var rec tailRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			fmt.Fprintln(w, tailRed("unreadable record: "+err.Error()))
			return nil
		}
		printRecord(w, rec, opts)
		return nil
	}

	if len(args) == 0 {
		return readLines(context.Background(), cmd.InOrStdin(), false, handle)
	}
	if !follow {
		return storage.ReadJsonl(args[0], handle)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open %s: %w", args[0], err)
	}
	defer f.Close()
	return readLines(ctx, f, true, handle)
}

// readLines hands every complete line of r to fn. With follow set, EOF is
// polled until ctx ends.
func readLines(ctx context.Context, r io.Reader, follow bool, fn func([]byte) error) error {
	br := bufio.NewReader(r)
	var partial []byte
	for {
		chunk, err := br.ReadBytes('\n')
		partial = append(partial, chunk...)
		if err == nil {
			if err := fn(partial); err != nil {
				return err
			}
			partial = partial[:0]
			continue
		}
		if !errors.Is(err, io.EOF) {
			return err
		}
		if !follow {
			if len(partial) > 0 {
				return fn(partial)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(followPoll):
		}
	}
}

func printRecord(w io.Writer, rec tailRecord, opts tailOptions) {
	epoch := tailDim(fmt.Sprintf("[%d]", rec.Epoch))
	switch {
	case rec.Chain != nil:
		if opts.linksOnly {
			return
		}
		fmt.Fprintf(w, "%s %s %s %s %s\n", epoch, tailBold("chain"), tailCyan(rec.Chain.URL), rec.Chain.Name, tailDim(rec.Chain.Endpoint))
	case rec.Block != nil:
		b := rec.Block
		if !opts.linksOnly {
			ts := "-"
			if b.Timestamp != nil {
				ts = time.UnixMilli(int64(*b.Timestamp)).UTC().Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s %s %s %s extrinsics=%d events=%d\n",
				epoch, tailBold("block"), tailCyan(b.URL), ts, len(b.Extrinsics), len(b.Events))
		}
		for _, x := range b.Extrinsics {
			printItem(w, "extrinsic", x, !x.Details.Failed, opts)
		}
		for _, ev := range b.Events {
			printItem(w, "event", ev, ev.Success != "sad", opts)
		}
		for _, e := range b.Errors {
			if opts.linksOnly {
				break
			}
			fmt.Fprintf(w, "  %s %s %s\n", tailRed("error"), e.Kind, e.Error)
		}
	}
}

func printItem(w io.Writer, label string, it tailItem, ok bool, opts tailOptions) {
	if opts.linksOnly && len(it.StartLinks) == 0 && len(it.EndLinks) == 0 {
		return
	}
	name := it.Pallet + "." + it.Variant
	switch {
	case !ok:
		name = tailRed(name)
	case it.Success == "worried":
		name = tailYellow(name)
	default:
		name = tailGreen(name)
	}
	var links []string
	for _, l := range it.StartLinks {
		links = append(links, tailYellow("→"+l.Key)+tailDim("("+l.Kind+")"))
	}
	for _, l := range it.EndLinks {
		links = append(links, tailYellow("←"+l.Key)+tailDim("("+l.Kind+")"))
	}
	fmt.Fprintf(w, "  %-9s %s %s %s\n", label, tailDim(it.URL), name, strings.Join(links, " "))
}
