package scripting

import "google.golang.org/protobuf/encoding/protowire"

// CustomEvent is the implementor-specified payload shape for the Custom
// action kind (§4.E.4, §6.2's "request-to-main-thread posting function"):
// a named event plus an ordered list of string arguments, e.g. a script
// binding asking the main thread to open a dialog or fire a gameplay event.
//
// Rather than inventing an ad hoc binary layout, this is wire-encoded with
// protowire — the same low-level varint/length-delimited primitives
// google.golang.org/protobuf uses under its generated code, consistent with
// the teacher wrapping cross-boundary payloads in a protobuf message
// (cmd/inos-node/main.go's proto_v1.Packet) rather than a bespoke format.
// Field numbers: 1 = name (string), 2 = repeated args (string).
type CustomEvent struct {
	Name string
	Args []string
}

const (
	customEventFieldName = protowire.Number(1)
	customEventFieldArg  = protowire.Number(2)
)

// EncodeCustomEvent serializes ev into an action payload.
func EncodeCustomEvent(ev CustomEvent) []byte {
	var b []byte
	b = protowire.AppendTag(b, customEventFieldName, protowire.BytesType)
	b = protowire.AppendString(b, ev.Name)
	for _, arg := range ev.Args {
		b = protowire.AppendTag(b, customEventFieldArg, protowire.BytesType)
		b = protowire.AppendString(b, arg)
	}
	return b
}

// DecodeCustomEvent parses a payload built by EncodeCustomEvent.
func DecodeCustomEvent(payload []byte) (CustomEvent, bool) {
	var ev CustomEvent
	for len(payload) > 0 {
		num, typ, n := protowire.ConsumeTag(payload)
		if n < 0 {
			return CustomEvent{}, false
		}
		payload = payload[n:]
		switch {
		case num == customEventFieldName && typ == protowire.BytesType:
			s, m := protowire.ConsumeString(payload)
			if m < 0 {
				return CustomEvent{}, false
			}
			ev.Name = s
			payload = payload[m:]
		case num == customEventFieldArg && typ == protowire.BytesType:
			s, m := protowire.ConsumeString(payload)
			if m < 0 {
				return CustomEvent{}, false
			}
			ev.Args = append(ev.Args, s)
			payload = payload[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, payload)
			if m < 0 {
				return CustomEvent{}, false
			}
			payload = payload[m:]
		}
	}
	return ev, true
}
