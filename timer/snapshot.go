package timer

import "github.com/tinylib/msgp/msgp"

// EventSnapshot is a persistable view of one pending timer event, used
// by Wheel.Snapshot for golden-file test comparisons. It records each
// event's cached restart duration so that value survives a
// serialize/deserialize round trip; RestartTimer itself reads the live
// wheel, not a snapshot. Data is only snapshotted when it is
// a string; any other payload type snapshots as "" since msgp needs a
// concrete wire type per field.
//
// MarshalMsg/UnmarshalMsg below are hand-written in the same
// array-tuple shape `msgp -tests -io=false -tuple` normally generates
// for a `//msgp:tuple` struct (field order is the wire format, no map
// keys), since this module has no way to run the msgp code generator.
type EventSnapshot struct {
	TimerID     uint64
	RestartMsec int64
	Data        string
}

// MarshalMsg appends es's msgpack encoding to b.
func (es *EventSnapshot) MarshalMsg(b []byte) ([]byte, error) {
	o := msgp.AppendArrayHeader(b, 3)
	o = msgp.AppendUint64(o, es.TimerID)
	o = msgp.AppendInt64(o, es.RestartMsec)
	o = msgp.AppendString(o, es.Data)
	return o, nil
}

// UnmarshalMsg decodes one EventSnapshot from the front of bts,
// returning the remaining bytes.
func (es *EventSnapshot) UnmarshalMsg(bts []byte) ([]byte, error) {
	sz, o, err := msgp.ReadArrayHeaderBytes(bts)
	if err != nil {
		return nil, err
	}
	if sz != 3 {
		return nil, msgp.ArrayError{Wanted: 3, Got: sz}
	}
	es.TimerID, o, err = msgp.ReadUint64Bytes(o)
	if err != nil {
		return nil, err
	}
	es.RestartMsec, o, err = msgp.ReadInt64Bytes(o)
	if err != nil {
		return nil, err
	}
	es.Data, o, err = msgp.ReadStringBytes(o)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// Msgsize returns an upper bound on es's encoded size.
func (es *EventSnapshot) Msgsize() int {
	return msgp.ArrayHeaderSize + msgp.Uint64Size + msgp.Int64Size + msgp.StringPrefixSize + len(es.Data)
}

// Snapshot collects every pending event across the whole wheel as
// EventSnapshots, in no particular order (callers that need a stable
// golden-file comparison should sort by TimerID).
func (w *Wheel) Snapshot() []EventSnapshot {
	var out []EventSnapshot
	for _, cn := range w.chainNodes {
		for _, sn := range cn.subNodes {
			for _, ev := range sn.events {
				s, _ := ev.data.(string)
				out = append(out, EventSnapshot{TimerID: ev.timerID, RestartMsec: ev.restartMsec, Data: s})
			}
		}
	}
	return out
}

// EncodeSnapshot msgpack-encodes a slice of EventSnapshots as a single
// array.
func EncodeSnapshot(events []EventSnapshot) ([]byte, error) {
	b := msgp.AppendArrayHeader(nil, uint32(len(events)))
	for i := range events {
		var err error
		b, err = events[i].MarshalMsg(b)
		if err != nil {
			return nil, err
		}
	}
	return b, nil
}

// DecodeSnapshot is EncodeSnapshot's inverse.
func DecodeSnapshot(b []byte) ([]EventSnapshot, error) {
	sz, o, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return nil, err
	}
	out := make([]EventSnapshot, sz)
	for i := range out {
		o, err = out[i].UnmarshalMsg(o)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
