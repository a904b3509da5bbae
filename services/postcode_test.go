package services

import "testing"

func TestNormalisePostcode(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"de5 1aa", "DE5 1AA"},
		{"  DE51AA ", "DE5 1AA"},
		{"de55  4bq", "DE55 4BQ"},
		{"ec1a1bb", "EC1A 1BB"},
		{"not  a postcode", "not a postcode"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalisePostcode(tt.raw); got != tt.want {
			t.Errorf("NormalisePostcode(%q) = %q; want %q", tt.raw, got, tt.want)
		}
	}
}

func TestLooksLikePostcode(t *testing.T) {
	if !LooksLikePostcode("de5 1aa") {
		t.Error("expected DE5 1AA to look like a postcode")
	}
	if LooksLikePostcode("4 Castle Drive") {
		t.Error("expected an address not to look like a postcode")
	}
}
