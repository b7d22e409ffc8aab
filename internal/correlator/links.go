package correlator

import (
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"paraScope/internal/decoder"
	"paraScope/internal/format"
	"paraScope/internal/model"
	"paraScope/internal/registry"
)

// Destination and beneficiary paths, tried in order, relative to the call
// arguments. The list is closed: a new envelope version needs a new entry.
var (
	destParaPaths = []string{
		"dest.V2.0.interior.X1.0.Parachain.0",
		"dest.V1.0.interior.X1.0.Parachain.0",
		"dest.V0.0.X1.0.Parachain.0",
	}
	beneficiaryPaths = []string{
		"beneficiary.V2.0.interior.X1.0.AccountId32.id",
		"beneficiary.V1.0.interior.X1.0.AccountId32.id",
		"beneficiary.V0.0.X1.0.AccountId32.id",
	}
	// Suffixes of the beneficiary inside a delivered message.
	deliverySuffixes = []string{
		"beneficiary.interior.X1.0.AccountId32.id",
		"beneficiary.X1.0.AccountId32.id",
	}
)

var sendKinds = map[string]model.LinkKind{
	"reserve_transfer_assets":         model.ReserveTransfer,
	"limited_reserve_transfer_assets": model.ReserveTransfer,
	"teleport_assets":                 model.Teleport,
	"limited_teleport_assets":         model.Teleport,
}

var batchCalls = map[string]bool{"batch": true, "batch_all": true, "force_batch": true}

// Linker attaches start and end links to decoded blocks.
type Linker struct {
	keys   *KeyRegistry
	logger *zap.Logger
}

func NewLinker(keys *KeyRegistry, logger *zap.Logger) *Linker {
	if keys == nil {
		keys = NewKeyRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Linker{keys: keys, logger: logger}
}

// Annotate implements indexer.Annotator.
func (l *Linker) Annotate(md *registry.Metadata, b *model.Block) {
	if b.URL.Block == nil {
		return
	}
	number := *b.URL.Block
	for i := range b.Extrinsics {
		x := &b.Extrinsics[i]
		for _, link := range l.sends(number, x.Pallet, x.Variant, &x.Args) {
			link.Key = l.keys.Start(link.Key)
			x.StartLinks = append(x.StartLinks, link)
		}
		if x.Pallet == "ParachainSystem" && x.Variant == "set_validation_data" {
			x.EndLinks = append(x.EndLinks, model.Link{Key: l.keys.End(model.InclusionKey(b.Hash)), Kind: model.ParaInclusion})
			for _, link := range l.deliveries(md, x) {
				link.Key = l.keys.End(link.Key)
				x.EndLinks = append(x.EndLinks, link)
			}
		}
	}
	for i := range b.Events {
		ev := &b.Events[i]
		if ev.Pallet != "ParaInclusion" || ev.Variant != "CandidateIncluded" {
			continue
		}
		head, ok := ev.Fields.Lookup("0.descriptor.para_head.0")
		if !ok {
			continue
		}
		raw, ok := head.Raw()
		if !ok || len(raw) != common.HashLength {
			continue
		}
		key := l.keys.Start(model.InclusionKey(common.BytesToHash(raw)))
		ev.StartLinks = append(ev.StartLinks, model.Link{Key: key, Kind: model.ParaInclusion})
	}
}

// sends returns the outbound message links of a call, looking inside
// batches.
func (l *Linker) sends(number uint32, pallet, call string, args *decoder.Value) []model.Link {
	if pallet == "Utility" && batchCalls[call] {
		calls, ok := args.Get("calls")
		if !ok {
			return nil
		}
		var out []model.Link
		for _, m := range calls.Members() {
			inner := m.Value
			p, c, a, ok := format.SplitCall(&inner)
			if !ok {
				continue
			}
			out = append(out, l.sends(number, p, c, &a)...)
		}
		return out
	}

	kind, ok := sendKinds[call]
	if pallet != "XcmPallet" || !ok {
		return nil
	}
	flat := decoder.FlattenMap(args)
	if _, ok := first(flat, destParaPaths); !ok {
		l.logger.Debug("send without parachain destination", zap.Uint32("block", number), zap.String("call", call))
		return nil
	}
	id, ok := first(flat, beneficiaryPaths)
	if !ok {
		return nil
	}
	raw, ok := id.Raw()
	if !ok {
		return nil
	}
	return []model.Link{{Key: model.LinkKey(number, raw), Kind: kind}}
}

// deliveries returns the links of the downward and horizontal messages
// carried by a set_validation_data call.
func (l *Linker) deliveries(md *registry.Metadata, x *model.Extrinsic) []model.Link {
	flat := decoder.FlattenMap(&x.Args)
	var out []model.Link

	for n := 0; ; n++ {
		prefix := "data.downward_messages." + strconv.Itoa(n) + "."
		sentAt, msg, ok := message(flat, prefix, "msg")
		if !ok {
			break
		}
		xcm, err := format.DecodeXcmBytes(md.Registry, msg)
		if err != nil {
			l.logger.Debug("undecodable downward message", zap.String("url", x.URL.String()), zap.Int("index", n), zap.Error(err))
			continue
		}
		if link, ok := deliveryLink(sentAt, xcm); ok {
			out = append(out, link)
		}
	}

	for s := 0; ; s++ {
		sender := "data.horizontal_messages." + strconv.Itoa(s) + "."
		if _, ok := flat[sender+"0.0"]; !ok {
			break
		}
		for n := 0; ; n++ {
			prefix := sender + "1." + strconv.Itoa(n) + "."
			sentAt, data, ok := message(flat, prefix, "data")
			if !ok {
				break
			}
			msgs, err := format.DecodeHrmp(md.Registry, data)
			if err != nil {
				l.logger.Debug("undecodable horizontal message", zap.String("url", x.URL.String()), zap.Int("sender", s), zap.Int("index", n), zap.Error(err))
			}
			for _, xcm := range msgs {
				if link, ok := deliveryLink(sentAt, xcm); ok {
					out = append(out, link)
				}
			}
		}
	}
	return out
}

func message(flat map[string]*decoder.Value, prefix, payload string) (uint32, []byte, bool) {
	at, ok := flat[prefix+"sent_at"]
	if !ok {
		return 0, nil, false
	}
	sentAt, ok := at.Uint64()
	if !ok {
		return 0, nil, false
	}
	body, ok := flat[prefix+payload]
	if !ok {
		return 0, nil, false
	}
	raw, ok := body.Raw()
	if !ok {
		return 0, nil, false
	}
	return uint32(sentAt), raw, true
}

// deliveryLink keys a delivered message by its beneficiary.
func deliveryLink(sentAt uint32, msg *format.XcmMessage) (model.Link, bool) {
	kind := model.ReserveTransfer
	var beneficiary []byte
	for i := range msg.Instructions {
		ins := &msg.Instructions[i]
		if name, _, ok := ins.Variant(); ok {
			switch {
			case strings.HasPrefix(name, "ReserveAssetDeposit"):
				kind = model.ReserveTransferMintDerivative
			case strings.Contains(name, "Teleport"):
				kind = model.Teleport
			}
		}
		if beneficiary != nil {
			continue
		}
		for _, p := range decoder.Flatten(ins) {
			if !hasAnySuffix(p.Path, deliverySuffixes) {
				continue
			}
			if raw, ok := p.Value.Raw(); ok {
				beneficiary = raw
				break
			}
		}
	}
	if beneficiary == nil {
		return model.Link{}, false
	}
	return model.Link{Key: model.LinkKey(sentAt, beneficiary), Kind: kind}, true
}

func first(flat map[string]*decoder.Value, paths []string) (*decoder.Value, bool) {
	for _, p := range paths {
		if v, ok := flat[p]; ok {
			return v, true
		}
	}
	return nil, false
}

func hasAnySuffix(path string, suffixes []string) bool {
	for _, s := range suffixes {
		if path == s || strings.HasSuffix(path, "."+s) {
			return true
		}
	}
	return false
}
