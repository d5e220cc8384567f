package webhook

import (
	"encoding/hex"
	"errors"
	"testing"
)

func TestVerifySignature(t *testing.T) {
	t.Parallel()
	body := []byte(`{"object":"whatsapp_business_account"}`)
	valid := "sha256=" + hex.EncodeToString(Sign(body, "app-secret"))

	cases := []struct {
		name   string
		header string
		secret string
		ok     bool
	}{
		{name: "valid", header: valid, secret: "app-secret", ok: true},
		{name: "disabled", header: "", secret: "", ok: true},
		{name: "missing", header: "", secret: "app-secret"},
		{name: "wrong prefix", header: "sha1=abcd", secret: "app-secret"},
		{name: "not hex", header: "sha256=zz", secret: "app-secret"},
		{name: "wrong secret", header: valid, secret: "other"},
	}
	for _, tc := range cases {
		err := VerifySignature(body, tc.header, tc.secret)
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("%s: expected ErrInvalidSignature, got %v", tc.name, err)
		}
	}
}
