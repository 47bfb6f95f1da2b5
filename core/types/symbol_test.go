package types

import "testing"

func TestNormalizeSymbol(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"", ""},
		{"   ", ""},
		{" usdc ", "USDC"},
		{"ＵＳＤＣ", "USDC"},
		{"　gov ", "GOV"},
		{"ﬁn", "FIN"},
	}
	for _, tc := range cases {
		if got := NormalizeSymbol(tc.in); got != tc.want {
			t.Fatalf("NormalizeSymbol(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
