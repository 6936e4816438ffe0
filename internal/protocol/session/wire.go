package session

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/danmuck/probectl/internal/protocol/frame"
	"github.com/danmuck/probectl/internal/protocol/schema"
	"github.com/danmuck/probectl/internal/protocol/tlv"
)

var (
	ErrUnexpectedMessage = errors.New("session: unexpected message type")
	ErrMissingClientID   = errors.New("session: missing client_id")
	ErrRemote            = errors.New("session: remote error")
)

// ReadFrame reads one framed message from the stream.
func ReadFrame(r io.Reader, limits frame.Limits) (frame.Frame, error) {
	return frame.ReadFrame(r, limits)
}

// WriteFrame writes pre-encoded frame bytes in one call.
func WriteFrame(w io.Writer, encoded []byte) error {
	_, err := w.Write(encoded)
	return err
}

// AttachAuth re-frames an encoded message with auth as its auth block.
func AttachAuth(encoded []byte, auth []byte) ([]byte, error) {
	limits := frame.DefaultLimits()
	f, err := frame.ReadFrame(bytes.NewReader(encoded), limits)
	if err != nil {
		return nil, err
	}
	f.Auth = auth
	var buf bytes.Buffer
	if err := frame.WriteFrame(&buf, f, limits); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeErrorFrame builds a MsgError reply. Error frames always carry
// the response flag so a client never mistakes one for a request.
func EncodeErrorFrame(messageID uint64, reason string) ([]byte, error) {
	if strings.TrimSpace(reason) == "" {
		reason = "unspecified"
	}
	return encodeFrame(messageID, schema.MsgError, frame.FlagIsResponse|frame.FlagIsError, []tlv.Field{
		tlv.String(schema.FieldReason, reason),
	})
}

func DecodeErrorFrame(f frame.Frame) (string, error) {
	fields, err := decodePayload(f, schema.MsgError)
	if err != nil {
		return "", err
	}
	return requiredString(fields, schema.FieldReason), nil
}

// RemoteError turns a MsgError frame into an error wrapping ErrRemote.
func RemoteError(f frame.Frame) error {
	reason, err := DecodeErrorFrame(f)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s", ErrRemote, reason)
}

func encodeFrame(messageID uint64, messageType uint32, flags uint32, fields []tlv.Field) ([]byte, error) {
	if err := schema.Validate(messageType, fields); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	err := frame.WriteFrame(&buf, frame.Frame{
		Header: frame.Header{
			MessageID:   messageID,
			MessageType: messageType,
			Flags:       flags,
		},
		Payload: tlv.EncodeFields(fields),
	}, frame.DefaultLimits())
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodePayload(f frame.Frame, messageType uint32) ([]tlv.Field, error) {
	if f.Header.MessageType != messageType {
		return nil, fmt.Errorf("%w: got %d want %d", ErrUnexpectedMessage, f.Header.MessageType, messageType)
	}
	fields, err := tlv.DecodeFields(f.Payload)
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(messageType, fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// Required field accessors run after schema.Validate has checked
// presence and type.

func requiredString(fields []tlv.Field, id uint16) string {
	f, _ := tlv.GetField(fields, id)
	return string(f.Value)
}

func requiredU8(fields []tlv.Field, id uint16) (uint8, error) {
	f, _ := tlv.GetField(fields, id)
	return f.AsU8()
}

func requiredBool(fields []tlv.Field, id uint16) (bool, error) {
	f, _ := tlv.GetField(fields, id)
	return f.AsBool()
}

func optionalU8(fields []tlv.Field, id uint16) (uint8, error) {
	f, ok := tlv.GetField(fields, id)
	if !ok {
		return 0, nil
	}
	return f.AsU8()
}

func optionalBytes(fields []tlv.Field, id uint16) ([]byte, error) {
	f, ok := tlv.GetField(fields, id)
	if !ok {
		return nil, nil
	}
	return f.AsBytes()
}
