package ref

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Reference
	}{
		{"zlib/1.2.11", Reference{Name: "zlib", Version: "1.2.11"}},
		{"zlib/1.2.11@acme/stable", Reference{Name: "zlib", Version: "1.2.11", User: "acme", Channel: "stable"}},
		{"zlib/1.2.11@acme/stable#abc123", Reference{Name: "zlib", Version: "1.2.11", User: "acme", Channel: "stable", Revision: "abc123"}},
		{"zlib/[>=1.0 <2.0]@acme/stable", Reference{Name: "zlib", Version: "[>=1.0 <2.0]", User: "acme", Channel: "stable"}},
		{"zlib/1.2.11#rev1", Reference{Name: "zlib", Version: "1.2.11", Revision: "rev1"}},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		if err != nil {
			t.Errorf("Parse(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
		if got.String() != tt.in {
			t.Errorf("Parse(%q).String() = %q, round-trip broken", tt.in, got.String())
		}
	}
}

func TestParseInvalid(t *testing.T) {
	for _, in := range []string{"", "zlib", "zlib/", "/1.0", "zlib/1.0@user", "zlib/1.0@/channel", "zlib/1.0#"} {
		if _, err := Parse(in); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", in)
		}
	}
}

func TestEqualIgnoreRev(t *testing.T) {
	a := MustParse("pkg/1.0@u/c#rev1")
	b := MustParse("pkg/1.0@u/c#rev2")
	c := MustParse("pkg/2.0@u/c#rev1")

	if !a.EqualIgnoreRev(b) {
		t.Error("same reference with different revisions should be reference-equal")
	}
	if a.Equal(b) {
		t.Error("different revisions should not be fully equal")
	}
	if a.EqualIgnoreRev(c) {
		t.Error("different versions should not be reference-equal")
	}
}

func TestPackageReference(t *testing.T) {
	p, err := ParsePackageReference("pkg/1.0@u/c#rrev:0123abcd#prev1")
	if err != nil {
		t.Fatalf("ParsePackageReference error: %v", err)
	}
	if p.Ref.Revision != "rrev" || p.PackageID != "0123abcd" || p.Revision != "prev1" {
		t.Errorf("unexpected parse result: %+v", p)
	}
	if got := p.String(); got != "pkg/1.0@u/c#rrev:0123abcd#prev1" {
		t.Errorf("String() = %q, round-trip broken", got)
	}

	cleared := p.ClearRevs()
	if cleared.Ref.Revision != "" || cleared.Revision != "" {
		t.Errorf("ClearRevs left revisions: %+v", cleared)
	}
	if cleared.PackageID != "0123abcd" {
		t.Errorf("ClearRevs dropped the package id")
	}
}

func TestPackageReferenceInvalid(t *testing.T) {
	for _, in := range []string{"pkg/1.0", "pkg/1.0:", ":abc"} {
		if _, err := ParsePackageReference(in); err == nil {
			t.Errorf("ParsePackageReference(%q) succeeded, want error", in)
		}
	}
}
