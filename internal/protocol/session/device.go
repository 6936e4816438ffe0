package session

import (
	"fmt"

	"github.com/danmuck/probectl/internal/control"
	"github.com/danmuck/probectl/internal/protocol/frame"
	"github.com/danmuck/probectl/internal/protocol/schema"
	"github.com/danmuck/probectl/internal/protocol/tlv"
)

// Device result statuses.
const (
	DeviceStatusOK    = "ok"
	DeviceStatusError = "error"
	DeviceStatusBusy  = "busy"
)

// DeviceReply is the device answer to one forwarded command.
type DeviceReply struct {
	Kind   control.RequestKind
	Status string
}

// OK reports whether the device accepted the command. Busy counts as a
// device-reported failure.
func (r DeviceReply) OK() bool {
	return r.Status == DeviceStatusOK
}

func EncodeDeviceCommandFrame(messageID uint64, cmd control.DeviceCommand) ([]byte, error) {
	fields := []tlv.Field{tlv.U8(schema.FieldRequest, uint8(cmd.Kind))}
	if len(cmd.Params) > 0 {
		fields = append(fields, tlv.Bytes(schema.FieldScanParams, cmd.Params))
	}
	return encodeFrame(messageID, schema.MsgDeviceCommand, 0, fields)
}

func DecodeDeviceCommandFrame(f frame.Frame) (control.DeviceCommand, error) {
	fields, err := decodePayload(f, schema.MsgDeviceCommand)
	if err != nil {
		return control.DeviceCommand{}, err
	}
	kind, err := requiredU8(fields, schema.FieldRequest)
	if err != nil {
		return control.DeviceCommand{}, err
	}
	params, err := optionalBytes(fields, schema.FieldScanParams)
	if err != nil {
		return control.DeviceCommand{}, err
	}
	return control.DeviceCommand{Kind: control.RequestKind(kind), Params: params}, nil
}

func EncodeDeviceResultFrame(messageID uint64, reply DeviceReply) ([]byte, error) {
	switch reply.Status {
	case DeviceStatusOK, DeviceStatusError, DeviceStatusBusy:
	default:
		return nil, fmt.Errorf("session: invalid device status %q", reply.Status)
	}
	return encodeFrame(messageID, schema.MsgDeviceResult, frame.FlagIsResponse, []tlv.Field{
		tlv.U8(schema.FieldRequest, uint8(reply.Kind)),
		tlv.String(schema.FieldDeviceStatus, reply.Status),
	})
}

func DecodeDeviceResultFrame(f frame.Frame) (DeviceReply, error) {
	fields, err := decodePayload(f, schema.MsgDeviceResult)
	if err != nil {
		return DeviceReply{}, err
	}
	kind, err := requiredU8(fields, schema.FieldRequest)
	if err != nil {
		return DeviceReply{}, err
	}
	return DeviceReply{
		Kind:   control.RequestKind(kind),
		Status: requiredString(fields, schema.FieldDeviceStatus),
	}, nil
}

func EncodeDeviceStatusQueryFrame(messageID uint64) ([]byte, error) {
	return encodeFrame(messageID, schema.MsgDeviceStatusQuery, 0, nil)
}

func EncodeDeviceStatusFrame(messageID uint64, status control.DeviceStatus) ([]byte, error) {
	fields := []tlv.Field{tlv.Bool(schema.FieldScanning, status.Scanning)}
	if len(status.Params) > 0 {
		fields = append(fields, tlv.Bytes(schema.FieldScanParams, status.Params))
	}
	return encodeFrame(messageID, schema.MsgDeviceStatus, frame.FlagIsResponse, fields)
}

func DecodeDeviceStatusFrame(f frame.Frame) (control.DeviceStatus, error) {
	fields, err := decodePayload(f, schema.MsgDeviceStatus)
	if err != nil {
		return control.DeviceStatus{}, err
	}
	scanning, err := requiredBool(fields, schema.FieldScanning)
	if err != nil {
		return control.DeviceStatus{}, err
	}
	params, err := optionalBytes(fields, schema.FieldScanParams)
	if err != nil {
		return control.DeviceStatus{}, err
	}
	return control.DeviceStatus{Scanning: scanning, Params: params}, nil
}
