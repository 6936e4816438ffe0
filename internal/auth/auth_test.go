package auth

import (
	"errors"
	"testing"

	"github.com/danmuck/probectl/internal/testutil/testlog"
	logs "github.com/danmuck/smplog"
)

func TestSharedTokenValidate(t *testing.T) {
	testlog.Start(t)
	tests := []struct {
		name    string
		stored  string
		input   []byte
		wantErr error
	}{
		{name: "empty token denied", stored: "", input: []byte("abc"), wantErr: ErrUnauthorized},
		{name: "mismatched token denied", stored: "abc", input: []byte("xyz"), wantErr: ErrUnauthorized},
		{name: "missing auth block denied", stored: "abc", input: nil, wantErr: ErrUnauthorized},
		{name: "matching token accepted", stored: "abc", input: []byte("abc"), wantErr: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := (SharedToken{Token: tc.stored}).Validate(tc.input)
			logs.Debugf("auth/shared-token stored=%q err=%v", tc.stored, err)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected err %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestForToken(t *testing.T) {
	testlog.Start(t)
	if err := ForToken("  ").Validate(nil); err != nil {
		t.Fatalf("empty token should accept everything, got %v", err)
	}
	v := ForToken(" secret ")
	if err := v.Validate([]byte("secret")); err != nil {
		t.Fatalf("expected trimmed token to match, got %v", err)
	}
	if err := v.Validate(nil); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestFuncValidator(t *testing.T) {
	testlog.Start(t)
	validator := FuncValidator(func(token []byte) error {
		if string(token) != "ok" {
			return ErrUnauthorized
		}
		return nil
	})

	if err := validator.Validate([]byte("bad")); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized for bad token, got %v", err)
	}
	if err := validator.Validate([]byte("ok")); err != nil {
		t.Fatalf("expected success for ok token, got %v", err)
	}
}
