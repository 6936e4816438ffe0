// Package scan holds the 2D scan parameter payload that clients hand to
// the device. The router forwards the encoded bytes untouched.
package scan

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// DefaultUnits is assumed when a payload leaves Units empty.
const DefaultUnits = "nm"

var (
	ErrInvalidParams = errors.New("scan: invalid parameters")
	ErrEmptyPayload  = errors.New("scan: empty payload")
)

// Params2D describes a rectangular region of interest and the pixel
// resolution to sample it at.
type Params2D struct {
	TopLeftX    float64 `cbor:"1,keyasint"`
	TopLeftY    float64 `cbor:"2,keyasint"`
	SizeX       float64 `cbor:"3,keyasint"`
	SizeY       float64 `cbor:"4,keyasint"`
	Units       string  `cbor:"5,keyasint,omitempty"`
	ResolutionX uint32  `cbor:"6,keyasint"`
	ResolutionY uint32  `cbor:"7,keyasint"`
}

// Validate rejects regions a device cannot scan.
func (p Params2D) Validate() error {
	for name, v := range map[string]float64{
		"top_left_x": p.TopLeftX,
		"top_left_y": p.TopLeftY,
		"size_x":     p.SizeX,
		"size_y":     p.SizeY,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidParams, name)
		}
	}
	if p.SizeX <= 0 || p.SizeY <= 0 {
		return fmt.Errorf("%w: non-positive size %gx%g", ErrInvalidParams, p.SizeX, p.SizeY)
	}
	if p.ResolutionX == 0 || p.ResolutionY == 0 {
		return fmt.Errorf("%w: zero resolution", ErrInvalidParams)
	}
	return nil
}

// Normalized fills the default unit.
func (p Params2D) Normalized() Params2D {
	p.Units = strings.TrimSpace(p.Units)
	if p.Units == "" {
		p.Units = DefaultUnits
	}
	return p
}

func (p Params2D) String() string {
	p = p.Normalized()
	return fmt.Sprintf("roi=(%g,%g)+(%gx%g)%s res=%dx%d",
		p.TopLeftX, p.TopLeftY, p.SizeX, p.SizeY, p.Units, p.ResolutionX, p.ResolutionY)
}

// encMode uses Core Deterministic Encoding so equal parameters always
// produce identical bytes.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("scan: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic("scan: CBOR decoder initialization failed: " + err.Error())
	}
}

// Encode validates p and returns its CBOR form.
func Encode(p Params2D) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return encMode.Marshal(p.Normalized())
}

// Decode parses and validates a CBOR payload.
func Decode(data []byte) (Params2D, error) {
	if len(data) == 0 {
		return Params2D{}, ErrEmptyPayload
	}
	var p Params2D
	if err := decMode.Unmarshal(data, &p); err != nil {
		return Params2D{}, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if err := p.Validate(); err != nil {
		return Params2D{}, err
	}
	return p.Normalized(), nil
}
