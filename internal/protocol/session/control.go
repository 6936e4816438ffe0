package session

import (
	"strings"

	"github.com/danmuck/probectl/internal/control"
	"github.com/danmuck/probectl/internal/protocol/frame"
	"github.com/danmuck/probectl/internal/protocol/schema"
	"github.com/danmuck/probectl/internal/protocol/tlv"
)

// ControlReply is the decoded router answer to one control request.
type ControlReply struct {
	Kind     control.RequestKind
	Response control.Response
}

func EncodeControlRequestFrame(messageID uint64, req control.Request) ([]byte, error) {
	if strings.TrimSpace(string(req.Client)) == "" {
		return nil, ErrMissingClientID
	}
	fields := []tlv.Field{
		tlv.String(schema.FieldClientID, string(req.Client)),
		tlv.U8(schema.FieldRequest, uint8(req.Kind)),
	}
	if req.Problem != control.ProblemNone {
		fields = append(fields, tlv.U8(schema.FieldProblem, uint8(req.Problem)))
	}
	if req.Mode != control.ModeUndefined {
		fields = append(fields, tlv.U8(schema.FieldMode, uint8(req.Mode)))
	}
	if len(req.Params) > 0 {
		fields = append(fields, tlv.Bytes(schema.FieldScanParams, req.Params))
	}
	return encodeFrame(messageID, schema.MsgControlRequest, 0, fields)
}

// DecodeControlRequestFrame decodes a client request. Unknown request
// kinds pass through so the router can answer them.
func DecodeControlRequestFrame(f frame.Frame) (control.Request, error) {
	fields, err := decodePayload(f, schema.MsgControlRequest)
	if err != nil {
		return control.Request{}, err
	}
	client := requiredString(fields, schema.FieldClientID)
	if strings.TrimSpace(client) == "" {
		return control.Request{}, ErrMissingClientID
	}
	kind, err := requiredU8(fields, schema.FieldRequest)
	if err != nil {
		return control.Request{}, err
	}
	problem, err := optionalU8(fields, schema.FieldProblem)
	if err != nil {
		return control.Request{}, err
	}
	mode, err := optionalU8(fields, schema.FieldMode)
	if err != nil {
		return control.Request{}, err
	}
	params, err := optionalBytes(fields, schema.FieldScanParams)
	if err != nil {
		return control.Request{}, err
	}
	return control.Request{
		Kind:    control.RequestKind(kind),
		Client:  control.ClientID(client),
		Problem: control.Problem(problem),
		Mode:    control.Mode(mode),
		Params:  params,
	}, nil
}

func EncodeControlResponseFrame(messageID uint64, reply ControlReply) ([]byte, error) {
	return encodeFrame(messageID, schema.MsgControlResponse, frame.FlagIsResponse, []tlv.Field{
		tlv.U8(schema.FieldRequest, uint8(reply.Kind)),
		tlv.U8(schema.FieldResponse, uint8(reply.Response)),
	})
}

func DecodeControlResponseFrame(f frame.Frame) (ControlReply, error) {
	fields, err := decodePayload(f, schema.MsgControlResponse)
	if err != nil {
		return ControlReply{}, err
	}
	kind, err := requiredU8(fields, schema.FieldRequest)
	if err != nil {
		return ControlReply{}, err
	}
	resp, err := requiredU8(fields, schema.FieldResponse)
	if err != nil {
		return ControlReply{}, err
	}
	return ControlReply{Kind: control.RequestKind(kind), Response: control.Response(resp)}, nil
}

func EncodeStateQueryFrame(messageID uint64, client control.ClientID) ([]byte, error) {
	if strings.TrimSpace(string(client)) == "" {
		return nil, ErrMissingClientID
	}
	return encodeFrame(messageID, schema.MsgStateQuery, 0, []tlv.Field{
		tlv.String(schema.FieldClientID, string(client)),
	})
}

func DecodeStateQueryFrame(f frame.Frame) (control.ClientID, error) {
	fields, err := decodePayload(f, schema.MsgStateQuery)
	if err != nil {
		return "", err
	}
	client := requiredString(fields, schema.FieldClientID)
	if strings.TrimSpace(client) == "" {
		return "", ErrMissingClientID
	}
	return control.ClientID(client), nil
}

// EncodeStateReplyFrame carries the problem set as one byte per id.
func EncodeStateReplyFrame(messageID uint64, snap control.Snapshot) ([]byte, error) {
	problems := make([]byte, 0, len(snap.Problems))
	for _, p := range snap.Problems {
		problems = append(problems, byte(p))
	}
	return encodeFrame(messageID, schema.MsgStateReply, frame.FlagIsResponse, []tlv.Field{
		tlv.U8(schema.FieldMode, uint8(snap.Mode)),
		tlv.String(schema.FieldOwner, string(snap.Owner)),
		tlv.Bytes(schema.FieldProblems, problems),
		tlv.Bool(schema.FieldScanning, snap.Scanning || snap.Forwarding),
	})
}

// DecodeStateReplyFrame rebuilds a snapshot. The wire does not separate
// an outstanding device command from a running scan; both decode as
// Scanning.
func DecodeStateReplyFrame(f frame.Frame) (control.Snapshot, error) {
	fields, err := decodePayload(f, schema.MsgStateReply)
	if err != nil {
		return control.Snapshot{}, err
	}
	mode, err := requiredU8(fields, schema.FieldMode)
	if err != nil {
		return control.Snapshot{}, err
	}
	scanning, err := requiredBool(fields, schema.FieldScanning)
	if err != nil {
		return control.Snapshot{}, err
	}
	raw, err := optionalBytes(fields, schema.FieldProblems)
	if err != nil {
		return control.Snapshot{}, err
	}
	problems := make([]control.Problem, 0, len(raw))
	for _, b := range raw {
		problems = append(problems, control.Problem(b))
	}
	owner := requiredString(fields, schema.FieldOwner)
	return control.Snapshot{
		Mode:     control.Mode(mode),
		Owner:    control.ClientID(owner),
		HasOwner: owner != "",
		Problems: problems,
		Scanning: scanning,
	}, nil
}
