package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"paraScope/internal/chain"
	"paraScope/internal/config"
	"paraScope/internal/decoder"
	"paraScope/internal/format"
	"paraScope/internal/registry"
	"paraScope/internal/scale"
)

func runDecode(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadDecode(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Input == "" {
		return fmt.Errorf("input is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	md, err := loadMetadata(ctx, cfg, logger)
	if err != nil {
		return err
	}
	payload, err := readPayload(cfg.Input, cmd.InOrStdin())
	if err != nil {
		return err
	}

	out, err := decodePayload(md, cfg.Kind, payload)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

type extrinsicView struct {
	Signed  bool              `json:"signed"`
	Version uint8             `json:"version"`
	Pallet  string            `json:"pallet"`
	Call    string            `json:"call"`
	Args    decoder.Value     `json:"args"`
	Extras  map[string]any    `json:"extras,omitempty"`
	Flat    map[string]string `json:"flat"`
	Hash    string            `json:"hash"`
}

type eventView struct {
	Phase     string            `json:"phase"`
	Extrinsic *uint32           `json:"extrinsic,omitempty"`
	Pallet    string            `json:"pallet"`
	Variant   string            `json:"variant"`
	Fields    decoder.Value     `json:"fields"`
	Flat      map[string]string `json:"flat"`
}

type xcmView struct {
	Version string        `json:"version"`
	Value   decoder.Value `json:"value"`
}

type blockView struct {
	Number     uint64          `json:"number"`
	Hash       string          `json:"hash"`
	ParentHash string          `json:"parent_hash"`
	Extrinsics []extrinsicView `json:"extrinsics"`
	Errors     []string        `json:"errors,omitempty"`
}

func decodePayload(md *registry.Metadata, kind string, payload []byte) (any, error) {
	switch kind {
	case config.DecodeExtrinsic:
		// Accept the bare extrinsic without its length prefix too.
		x, err := format.DecodeExtrinsic(md, payload)
		if err != nil {
			x, err = format.DecodeExtrinsic(md, scale.AppendLengthPrefixed(nil, payload))
		}
		if err != nil {
			return nil, fmt.Errorf("decode extrinsic: %w", err)
		}
		return viewExtrinsic(x), nil
	case config.DecodeEvents:
		events, err := format.DecodeEvents(md, payload)
		if err != nil {
			return nil, fmt.Errorf("decode events: %w", err)
		}
		out := make([]eventView, 0, len(events.Records))
		for _, r := range events.Records {
			v := eventView{
				Phase:   r.Phase.Kind.String(),
				Pallet:  r.Pallet,
				Variant: r.Variant,
				Fields:  r.Fields,
				Flat:    flatText(&r.Fields),
			}
			if r.Phase.Kind == format.PhaseApplyExtrinsic {
				idx := r.Phase.Extrinsic
				v.Extrinsic = &idx
			}
			out = append(out, v)
		}
		return out, nil
	case config.DecodeXcm:
		msg, err := format.DecodeXcmBytes(md.Registry, payload)
		if err != nil {
			return nil, err
		}
		return xcmView{Version: msg.Version, Value: msg.Value}, nil
	case config.DecodeHrmp:
		msgs, err := format.DecodeHrmp(md.Registry, payload)
		out := make([]xcmView, 0, len(msgs))
		for _, m := range msgs {
			out = append(out, xcmView{Version: m.Version, Value: m.Value})
		}
		if err != nil {
			return out, err
		}
		return out, nil
	case config.DecodeBlock:
		b, err := format.DecodeBlock(payload)
		if err != nil {
			return nil, fmt.Errorf("decode block: %w", err)
		}
		hash := b.Header.Hash()
		view := blockView{
			Number:     b.Header.Number,
			Hash:       hash.Hex(),
			ParentHash: b.Header.ParentHash.Hex(),
		}
		for i, raw := range b.Extrinsics {
			x, err := format.DecodeExtrinsic(md, raw)
			if err != nil {
				view.Errors = append(view.Errors, fmt.Sprintf("extrinsic %d: %v", i, err))
				continue
			}
			view.Extrinsics = append(view.Extrinsics, viewExtrinsic(x))
		}
		return view, nil
	}
	return nil, fmt.Errorf("unknown decode kind %q", kind)
}

func viewExtrinsic(x *format.Extrinsic) extrinsicView {
	hash := blake2b.Sum256(x.Raw)
	v := extrinsicView{
		Signed:  x.Signed,
		Version: x.Version,
		Pallet:  x.Pallet,
		Call:    x.Call,
		Args:    x.Args,
		Flat:    flatText(&x.Args),
		Hash:    hexutil.Encode(hash[:]),
	}
	if len(x.Extras) > 0 {
		v.Extras = make(map[string]any, len(x.Extras))
		for _, e := range x.Extras {
			v.Extras[e.Identifier] = e.Value
		}
	}
	return v
}

func flatText(v *decoder.Value) map[string]string {
	pairs := decoder.Flatten(v)
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		out[p.Path] = p.Value.Text()
	}
	return out
}

func runInspect(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadDecode(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	md, err := loadMetadata(ctx, cfg, logger)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if cfg.Pallet != "" {
		return inspectPallet(w, md, cfg.Pallet)
	}

	fmt.Fprintf(w, "metadata v%d: %d types, %d pallets, extrinsic v%d\n",
		md.Version, md.Registry.Len(), len(md.Pallets), md.Extrinsic.Version)
	names := make([]string, 0, len(md.Extrinsic.SignedExtensions))
	for _, e := range md.Extrinsic.SignedExtensions {
		names = append(names, e.Identifier)
	}
	fmt.Fprintf(w, "signed extensions: %s\n", strings.Join(names, ", "))
	for _, p := range md.Pallets {
		var parts []string
		if p.HasCalls {
			parts = append(parts, fmt.Sprintf("%d calls", variantCount(md.Registry, p.CallType)))
		}
		if p.HasEvents {
			parts = append(parts, fmt.Sprintf("%d events", variantCount(md.Registry, p.EventType)))
		}
		if p.Storage != nil {
			parts = append(parts, fmt.Sprintf("%d storage", len(p.Storage.Entries)))
		}
		if len(p.Constants) > 0 {
			parts = append(parts, fmt.Sprintf("%d constants", len(p.Constants)))
		}
		fmt.Fprintf(w, "%3d %-24s %s\n", p.Index, p.Name, strings.Join(parts, ", "))
	}
	return nil
}

func inspectPallet(w io.Writer, md *registry.Metadata, name string) error {
	p, ok := md.Pallet(name)
	if !ok {
		return fmt.Errorf("no pallet %q", name)
	}
	fmt.Fprintf(w, "%s (index %d)\n", p.Name, p.Index)
	if p.HasCalls {
		fmt.Fprintln(w, "calls:")
		printVariants(w, md.Registry, p.CallType)
	}
	if p.HasEvents {
		fmt.Fprintln(w, "events:")
		printVariants(w, md.Registry, p.EventType)
	}
	if p.Storage != nil {
		fmt.Fprintf(w, "storage (prefix %s):\n", p.Storage.Prefix)
		entries := append([]registry.StorageEntry(nil), p.Storage.Entries...)
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
		for _, e := range entries {
			shape := "plain"
			if e.Map {
				shape = fmt.Sprintf("map(%d hashers)", len(e.Hashers))
			}
			fmt.Fprintf(w, "  %-32s %s value=%d\n", e.Name, shape, e.Value)
		}
	}
	return nil
}

func variantCount(reg *registry.Registry, id uint32) int {
	t, err := reg.Resolve(id)
	if err != nil {
		return 0
	}
	return len(t.Def.Variants)
}

func printVariants(w io.Writer, reg *registry.Registry, id uint32) {
	t, err := reg.Resolve(id)
	if err != nil {
		fmt.Fprintf(w, "  unresolved type %d\n", id)
		return
	}
	for _, v := range t.Def.Variants {
		fields := make([]string, 0, len(v.Fields))
		for _, f := range v.Fields {
			label := f.Name
			if label == "" {
				label = f.TypeName
			}
			fields = append(fields, label)
		}
		fmt.Fprintf(w, "  %3d %s(%s)\n", v.Index, v.Name, strings.Join(fields, ", "))
	}
}

// loadMetadata reads the metadata file, or fetches the blob from the
// configured endpoint.
func loadMetadata(ctx context.Context, cfg config.DecodeConfig, logger *zap.Logger) (*registry.Metadata, error) {
	var raw []byte
	if cfg.Metadata != "" {
		data, err := os.ReadFile(cfg.Metadata)
		if err != nil {
			return nil, fmt.Errorf("read metadata: %w", err)
		}
		raw = maybeHex(data)
	} else {
		client, err := chain.NewClient(ctx, cfg.Endpoint, logger.Named("rpc"))
		if err != nil {
			return nil, fmt.Errorf("connect rpc: %w", err)
		}
		defer client.Close()
		var at []byte
		if cfg.At != "" {
			at, err = hexutil.Decode(cfg.At)
			if err != nil {
				return nil, fmt.Errorf("parse at: %w", err)
			}
		}
		raw, err = client.Metadata(ctx, at)
		if err != nil {
			return nil, fmt.Errorf("fetch metadata: %w", err)
		}
	}
	md, err := registry.DecodeMetadata(raw)
	if err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	logger.Debug("metadata loaded", zap.Int("types", md.Registry.Len()), zap.Int("pallets", len(md.Pallets)))
	return md, nil
}

// readPayload accepts 0x hex, a file path holding hex or raw bytes, or "-"
// for stdin.
func readPayload(input string, stdin io.Reader) ([]byte, error) {
	if strings.HasPrefix(input, "0x") {
		b, err := hexutil.Decode(strings.TrimSpace(input))
		if err != nil {
			return nil, fmt.Errorf("parse input hex: %w", err)
		}
		return b, nil
	}
	var data []byte
	var err error
	if input == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(input)
	}
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return maybeHex(data), nil
}

func maybeHex(data []byte) []byte {
	trimmed := bytes.TrimSpace(data)
	if bytes.HasPrefix(trimmed, []byte("0x")) {
		if b, err := hexutil.Decode(string(trimmed)); err == nil {
			return b
		}
	}
	return data
}
