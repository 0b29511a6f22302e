package store

import (
	"testing"
)

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()
	rs := r.Resources()
	if len(rs) != 7 {
		t.Fatalf("expected 7 resources, got %d", len(rs))
	}
	for _, res := range rs {
		want := "{}"
		if res.Name == Sponsors {
			want = "[]"
		}
		if string(res.Default) != want {
			t.Fatalf("resource %s default %q, want %q", res.Name, res.Default, want)
		}
	}
}

func TestRegistryLookupByNameAndFile(t *testing.T) {
	r := DefaultRegistry()
	byName, ok := r.Lookup("sponsors")
	if !ok {
		t.Fatal("lookup by name failed")
	}
	byFile, ok := r.Lookup("sponsors.json")
	if !ok {
		t.Fatal("lookup by file failed")
	}
	if byName.Name != byFile.Name || byName.File != "sponsors.json" {
		t.Fatalf("lookups disagree: %+v vs %+v", byName, byFile)
	}
	if _, ok := r.Lookup("../etc/passwd"); ok {
		t.Fatal("unexpected match for traversal key")
	}
	if _, ok := r.Lookup("Sponsors"); ok {
		t.Fatal("lookup must be case sensitive")
	}
}

func TestNewRegistryValidation(t *testing.T) {
	tests := []struct {
		name string
		rs   []Resource
	}{
		{"empty", nil},
		{"missing name", []Resource{{File: "a.json"}}},
		{"path in file", []Resource{{Name: "a", File: "sub/a.json"}}},
		{"dotdot file", []Resource{{Name: "a", File: ".."}}},
		{"duplicate name", []Resource{{Name: "a", File: "a.json"}, {Name: "a", File: "b.json"}}},
		{"duplicate file", []Resource{{Name: "a", File: "x.json"}, {Name: "b", File: "x.json"}}},
		{"name collides with file", []Resource{{Name: "a", File: "b.json"}, {Name: "b.json", File: "c.json"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRegistry(tt.rs...); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestRegistryIsImmutable(t *testing.T) {
	r := DefaultRegistry()
	rs := r.Resources()
	rs[0].Name = "mutated"
	if r.Resources()[0].Name == "mutated" {
		t.Fatal("Resources must return a copy")
	}
}

func TestRegistryDefaultsAreCopies(t *testing.T) {
	seed := []byte("[]")
	r, err := NewRegistry(Resource{Name: Sponsors, File: "sponsors.json", Default: seed})
	if err != nil {
		t.Fatal(err)
	}
	seed[0] = '{'

	res, _ := r.Lookup(Sponsors)
	res.Default[0] = '{'
	r.Resources()[0].Default[1] = '}'

	again, _ := r.Lookup("sponsors.json")
	if string(again.Default) != "[]" {
		t.Fatalf("registry default changed to %q", again.Default)
	}
}
