// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

//go:build !live

package version

import "testing"

func TestParseSemVer(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "1.0.0", want: "1.0.0"},
		{in: "0.2.1-pre", want: "0.2.1-pre"},
		{in: "0.2.1-pre.1+release.local", want: "0.2.1-pre.1+release.local"},
		{in: "1.0", wantErr: true},
		{in: "01.0.0", wantErr: true},
		{in: "1.0.0-", wantErr: true},
	}
	for _, tt := range tests {
		v, err := ParseSemVer(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("%s: wrong error %v", tt.in, err)
		}
		if err == nil && v.String() != tt.want {
			t.Fatalf("%s: wrong version %s", tt.in, v)
		}
	}
}

func TestParseKeepsBuildMetadata(t *testing.T) {
	if v := Parse("0.1.0+release.local"); v != "0.1.0+release.local" {
		t.Fatalf("wrong version %s", v)
	}
}

func TestNormalizeString(t *testing.T) {
	if s := NormalizeString("ab_c.d+e-f"); s != "abc.de-f" {
		t.Fatalf("wrong normalized string %s", s)
	}
}
