package schema

import (
	"fmt"

	"github.com/danmuck/probectl/internal/protocol/tlv"
	logs "github.com/danmuck/smplog"
)

// Message type IDs.
const (
	MsgControlRequest    uint32 = 1
	MsgControlResponse   uint32 = 2
	MsgStateQuery        uint32 = 3
	MsgStateReply        uint32 = 4
	MsgDeviceCommand     uint32 = 5
	MsgDeviceResult      uint32 = 6
	MsgDeviceStatusQuery uint32 = 7
	MsgDeviceStatus      uint32 = 8
	MsgError             uint32 = 9
	MsgHistoryQuery      uint32 = 10
	MsgHistoryReply      uint32 = 11
)

// Field IDs.
const (
	FieldClientID uint16 = 1
	FieldRequest  uint16 = 2
	FieldResponse uint16 = 3

	FieldProblem    uint16 = 100
	FieldMode       uint16 = 101
	FieldScanParams uint16 = 102

	FieldOwner    uint16 = 200
	FieldProblems uint16 = 201
	FieldScanning uint16 = 202

	FieldDeviceStatus uint16 = 300

	FieldLimit    uint16 = 400
	FieldDecision uint16 = 401
	FieldSeq      uint16 = 402
	FieldAt       uint16 = 403

	FieldReason uint16 = 900
)

// Requirement declares one known field of a message type. Optional
// fields are type-checked only when present.
type Requirement struct {
	ID       uint16
	Type     uint8
	Optional bool
}

type ValidationError struct {
	MessageType uint32
	FieldID     uint16
	Reason      string
}

func (e ValidationError) Error() string {
	if e.FieldID == 0 {
		return fmt.Sprintf("schema: message_type=%d: %s", e.MessageType, e.Reason)
	}
	return fmt.Sprintf("schema: message_type=%d field=%d: %s", e.MessageType, e.FieldID, e.Reason)
}

var requirements = map[uint32][]Requirement{
	MsgControlRequest: {
		{ID: FieldClientID, Type: tlv.TypeString},
		{ID: FieldRequest, Type: tlv.TypeU8},
		{ID: FieldProblem, Type: tlv.TypeU8, Optional: true},
		{ID: FieldMode, Type: tlv.TypeU8, Optional: true},
		{ID: FieldScanParams, Type: tlv.TypeBytes, Optional: true},
	},
	MsgControlResponse: {
		{ID: FieldRequest, Type: tlv.TypeU8},
		{ID: FieldResponse, Type: tlv.TypeU8},
	},
	MsgStateQuery: {
		{ID: FieldClientID, Type: tlv.TypeString},
	},
	MsgStateReply: {
		{ID: FieldMode, Type: tlv.TypeU8},
		{ID: FieldOwner, Type: tlv.TypeString},
		{ID: FieldProblems, Type: tlv.TypeBytes},
		{ID: FieldScanning, Type: tlv.TypeBool},
	},
	MsgDeviceCommand: {
		{ID: FieldRequest, Type: tlv.TypeU8},
		{ID: FieldScanParams, Type: tlv.TypeBytes, Optional: true},
	},
	MsgDeviceResult: {
		{ID: FieldRequest, Type: tlv.TypeU8},
		{ID: FieldDeviceStatus, Type: tlv.TypeString},
	},
	MsgDeviceStatusQuery: {},
	MsgDeviceStatus: {
		{ID: FieldScanning, Type: tlv.TypeBool},
		{ID: FieldScanParams, Type: tlv.TypeBytes, Optional: true},
	},
	MsgError: {
		{ID: FieldReason, Type: tlv.TypeString},
	},
	MsgHistoryQuery: {
		{ID: FieldClientID, Type: tlv.TypeString},
		{ID: FieldLimit, Type: tlv.TypeU64, Optional: true},
	},
	// One FieldDecision per entry, each a nested TLV record.
	MsgHistoryReply: {
		{ID: FieldDecision, Type: tlv.TypeBytes, Optional: true},
	},
}

// Validate enforces required fields and field types for a message type.
// Unknown fields are ignored.
func Validate(messageType uint32, fields []tlv.Field) error {
	reqs, ok := requirements[messageType]
	if !ok {
		logs.Warnf("schema.Validate unknown message_type=%d", messageType)
		return ValidationError{MessageType: messageType, Reason: "unknown message_type"}
	}
	for _, req := range reqs {
		f, found := tlv.GetField(fields, req.ID)
		if !found {
			if req.Optional {
				continue
			}
			logs.Debugf("schema.Validate missing field message_type=%d field_id=%d", messageType, req.ID)
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "missing required field"}
		}
		if f.Type != req.Type {
			logs.Debugf(
				"schema.Validate type mismatch message_type=%d field_id=%d got=%d want=%d",
				messageType, req.ID, f.Type, req.Type,
			)
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "type mismatch"}
		}
	}
	return nil
}
