package reference

import "testing"

func TestNewDefaults(t *testing.T) {
	ref, err := New("hello", WithEndpoints("127.0.0.1:10000"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if ref.Mode() != ModeTwoWay || !ref.IsTwoWay() {
		t.Errorf("mode = %v, want twoway", ref.Mode())
	}
	if _, ok := ref.Compress(); ok {
		t.Error("unexpected compress override")
	}
	if got := ref.String(); got != "hello -m twoway:127.0.0.1:10000" {
		t.Errorf("String() = %q", got)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty identity")
	}
	if _, err := New("hello"); err == nil {
		t.Error("expected error without endpoints or service")
	}
	if _, err := New("hello", WithService("greeter"), WithMode(Mode(42))); err == nil {
		t.Error("expected error for invalid mode")
	}
}

func TestDeriveLeavesOriginalUntouched(t *testing.T) {
	eps := []string{"a:1", "b:2"}
	ref, err := New("hello", WithEndpoints(eps...), WithCompress(true))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	eps[0] = "mutated:0"

	batch, err := ref.Derive(WithMode(ModeBatchOneWay), WithFacet("admin"))
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}

	if ref.Mode() != ModeTwoWay || ref.Facet() != "" {
		t.Errorf("original changed: %v", ref)
	}
	if ref.Endpoints()[0] != "a:1" {
		t.Errorf("endpoints aliased caller slice: %v", ref.Endpoints())
	}
	if !batch.IsBatch() || batch.Facet() != "admin" {
		t.Errorf("derived = %v", batch)
	}
	if c, ok := batch.Compress(); !ok || !c {
		t.Error("derived reference lost compress override")
	}
}

func TestParseMode(t *testing.T) {
	for _, m := range []Mode{ModeTwoWay, ModeOneWay, ModeBatchOneWay, ModeDatagram, ModeBatchDatagram} {
		got, err := ParseMode(m.String())
		if err != nil || got != m {
			t.Errorf("ParseMode(%q) = %v, %v", m.String(), got, err)
		}
	}
	if _, err := ParseMode("sometimes"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestVersionConstraint(t *testing.T) {
	if _, err := New("hello", WithService("greeter"), WithVersion("not a range")); err == nil {
		t.Error("expected error for bad constraint")
	}

	ref, err := New("hello", WithService("greeter"), WithVersion(">=1.2.0 <2.0.0"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tests := []struct {
		version string
		want    bool
	}{
		{"1.2.0", true},
		{"v1.9.3", true},
		{"1.1.9", false},
		{"2.0.0", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ref.AcceptsVersion(tt.version); got != tt.want {
			t.Errorf("AcceptsVersion(%q) = %t, want %t", tt.version, got, tt.want)
		}
	}

	derived, err := ref.Derive(WithMode(ModeOneWay))
	if err != nil {
		t.Fatal(err)
	}
	if derived.AcceptsVersion("2.1.0") {
		t.Error("derived reference lost its version constraint")
	}

	open, _ := New("hello", WithService("greeter"))
	if !open.AcceptsVersion("") {
		t.Error("unconstrained reference rejected an instance")
	}
}
