package scan

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/danmuck/probectl/internal/testutil/testlog"
)

func sampleParams() Params2D {
	return Params2D{
		TopLeftX:    -250,
		TopLeftY:    125.5,
		SizeX:       500,
		SizeY:       500,
		Units:       "nm",
		ResolutionX: 256,
		ResolutionY: 128,
	}
}

func TestEncodeDecode(t *testing.T) {
	testlog.Start(t)
	in := sampleParams()
	data, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out != in {
		t.Fatalf("params mismatch: in=%+v out=%+v", in, out)
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	testlog.Start(t)
	a, err := Encode(sampleParams())
	if err != nil {
		t.Fatalf("encode a: %v", err)
	}
	b, err := Encode(sampleParams())
	if err != nil {
		t.Fatalf("encode b: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("same params produced different bytes")
	}
}

func TestEncodeFillsDefaultUnits(t *testing.T) {
	testlog.Start(t)
	p := sampleParams()
	p.Units = ""
	data, err := Encode(p)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Units != DefaultUnits {
		t.Fatalf("expected default units, got %q", out.Units)
	}
}

func TestValidateRejectsBadRegions(t *testing.T) {
	testlog.Start(t)
	cases := map[string]func(*Params2D){
		"zero size":     func(p *Params2D) { p.SizeX = 0 },
		"negative size": func(p *Params2D) { p.SizeY = -1 },
		"zero res":      func(p *Params2D) { p.ResolutionX = 0 },
		"nan origin":    func(p *Params2D) { p.TopLeftX = math.NaN() },
		"inf size":      func(p *Params2D) { p.SizeX = math.Inf(1) },
	}
	for name, mutate := range cases {
		p := sampleParams()
		mutate(&p)
		if _, err := Encode(p); !errors.Is(err, ErrInvalidParams) {
			t.Fatalf("%s: expected ErrInvalidParams, got %v", name, err)
		}
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	testlog.Start(t)
	if _, err := Decode(nil); !errors.Is(err, ErrEmptyPayload) {
		t.Fatalf("expected ErrEmptyPayload, got %v", err)
	}
	if _, err := Decode([]byte{0xff, 0x00}); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams, got %v", err)
	}
}
