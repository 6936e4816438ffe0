package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/probectl/internal/control"
	"github.com/danmuck/probectl/internal/protocol/frame"
	"github.com/danmuck/probectl/internal/protocol/schema"
	"github.com/danmuck/probectl/internal/protocol/tlv"
)

// HistoryQuery asks the router for its most recent decisions. Limit 0
// means everything the router still holds.
type HistoryQuery struct {
	Client control.ClientID
	Limit  uint64
}

func EncodeHistoryQueryFrame(messageID uint64, q HistoryQuery) ([]byte, error) {
	if strings.TrimSpace(string(q.Client)) == "" {
		return nil, ErrMissingClientID
	}
	fields := []tlv.Field{tlv.String(schema.FieldClientID, string(q.Client))}
	if q.Limit > 0 {
		fields = append(fields, tlv.U64(schema.FieldLimit, q.Limit))
	}
	return encodeFrame(messageID, schema.MsgHistoryQuery, 0, fields)
}

func DecodeHistoryQueryFrame(f frame.Frame) (HistoryQuery, error) {
	fields, err := decodePayload(f, schema.MsgHistoryQuery)
	if err != nil {
		return HistoryQuery{}, err
	}
	client := requiredString(fields, schema.FieldClientID)
	if strings.TrimSpace(client) == "" {
		return HistoryQuery{}, ErrMissingClientID
	}
	q := HistoryQuery{Client: control.ClientID(client)}
	if lf, ok := tlv.GetField(fields, schema.FieldLimit); ok {
		if q.Limit, err = lf.AsU64(); err != nil {
			return HistoryQuery{}, err
		}
	}
	return q, nil
}

// EncodeHistoryReplyFrame writes one nested record per decision, oldest
// first.
func EncodeHistoryReplyFrame(messageID uint64, decisions []control.Decision) ([]byte, error) {
	fields := make([]tlv.Field, 0, len(decisions))
	for _, d := range decisions {
		record := tlv.EncodeFields([]tlv.Field{
			tlv.U64(schema.FieldSeq, d.Seq),
			tlv.U64(schema.FieldAt, uint64(d.At.UnixNano())),
			tlv.String(schema.FieldClientID, string(d.Client)),
			tlv.U8(schema.FieldRequest, uint8(d.Kind)),
			tlv.U8(schema.FieldResponse, uint8(d.Response)),
			tlv.U8(schema.FieldMode, uint8(d.Mode)),
		})
		fields = append(fields, tlv.Bytes(schema.FieldDecision, record))
	}
	return encodeFrame(messageID, schema.MsgHistoryReply, frame.FlagIsResponse, fields)
}

func DecodeHistoryReplyFrame(f frame.Frame) ([]control.Decision, error) {
	fields, err := decodePayload(f, schema.MsgHistoryReply)
	if err != nil {
		return nil, err
	}
	out := make([]control.Decision, 0, len(fields))
	for _, field := range fields {
		if field.ID != schema.FieldDecision {
			continue
		}
		raw, err := field.AsBytes()
		if err != nil {
			return nil, err
		}
		d, err := decodeDecision(raw)
		if err != nil {
			return nil, fmt.Errorf("session: decision %d: %w", len(out), err)
		}
		out = append(out, d)
	}
	return out, nil
}

func decodeDecision(raw []byte) (control.Decision, error) {
	fields, err := tlv.DecodeFields(raw)
	if err != nil {
		return control.Decision{}, err
	}
	var d control.Decision
	seq, err := recordU64(fields, schema.FieldSeq)
	if err != nil {
		return control.Decision{}, err
	}
	at, err := recordU64(fields, schema.FieldAt)
	if err != nil {
		return control.Decision{}, err
	}
	kind, err := recordU8(fields, schema.FieldRequest)
	if err != nil {
		return control.Decision{}, err
	}
	resp, err := recordU8(fields, schema.FieldResponse)
	if err != nil {
		return control.Decision{}, err
	}
	mode, err := recordU8(fields, schema.FieldMode)
	if err != nil {
		return control.Decision{}, err
	}
	client, ok := tlv.GetField(fields, schema.FieldClientID)
	if !ok {
		return control.Decision{}, fmt.Errorf("%w: client_id", tlv.ErrInvalidLength)
	}
	name, err := client.AsString()
	if err != nil {
		return control.Decision{}, err
	}
	d.Seq = seq
	d.At = time.Unix(0, int64(at))
	d.Client = control.ClientID(name)
	d.Kind = control.RequestKind(kind)
	d.Response = control.Response(resp)
	d.Mode = control.Mode(mode)
	return d, nil
}

// Nested records are not schema-validated, so a missing field is an
// error here rather than a zero value.

func recordU64(fields []tlv.Field, id uint16) (uint64, error) {
	f, ok := tlv.GetField(fields, id)
	if !ok {
		return 0, fmt.Errorf("%w: field %d missing", tlv.ErrInvalidLength, id)
	}
	return f.AsU64()
}

func recordU8(fields []tlv.Field, id uint16) (uint8, error) {
	f, ok := tlv.GetField(fields, id)
	if !ok {
		return 0, fmt.Errorf("%w: field %d missing", tlv.ErrInvalidLength, id)
	}
	return f.AsU8()
}
