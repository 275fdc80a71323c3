package category

import (
	"slices"
	"testing"
)

func TestRegistry_Resolve(t *testing.T) {
	t.Parallel()

	r := NewRegistry()

	tests := []struct {
		name     string
		category string
		want     string
	}{
		{name: "known category", category: "gambling", want: "gambling"},
		{name: "empty falls back", category: "", want: General},
		{name: "unknown falls back", category: "weather", want: General},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := r.Resolve(tt.category); got.Name != tt.want {
				t.Errorf("Resolve(%q).Name = %q, want %q", tt.category, got.Name, tt.want)
			}
		})
	}
}

func TestRegistry_RestrictedImpliesAgeGated(t *testing.T) {
	t.Parallel()

	r := NewRegistry()

	// Built-ins already honor it.
	for _, name := range r.Names() {
		p, _ := r.Get(name)
		if p.Restricted && !p.AgeGated {
			t.Errorf("built-in %q is restricted but not age-gated", name)
		}
	}

	// Registration normalizes a profile that forgets the gate.
	if err := r.Register(Profile{Name: "casino-vip", Restricted: true}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	p, _ := r.Get("casino-vip")
	if !p.AgeGated {
		t.Error("registered restricted profile not normalized to age-gated")
	}
}

func TestRegistry_Register(t *testing.T) {
	t.Parallel()

	r := NewRegistry()

	if err := r.Register(Profile{}); err == nil {
		t.Error("Register(empty name) error = nil, want error")
	}

	if err := r.Register(Profile{Name: "trivia", Persona: "You are a quiz host."}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if !slices.Contains(r.Names(), "trivia") {
		t.Error("registered category missing from Names()")
	}

	// Replacing an existing profile keeps one entry.
	before := len(r.Names())
	if err := r.Register(Profile{Name: "trivia", Persona: "updated"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if got, _ := r.Get("trivia"); got.Persona != "updated" {
		t.Errorf("Persona = %q, want %q", got.Persona, "updated")
	}
	if len(r.Names()) != before {
		t.Errorf("Names() length changed on replace: %d -> %d", before, len(r.Names()))
	}
}

func TestProfile_SystemParts(t *testing.T) {
	t.Parallel()

	p := Profile{Persona: "persona text", Rules: "rules text"}
	parts := p.SystemParts()
	if len(parts) != 2 || parts[0] != "persona text" || parts[1] != "rules text" {
		t.Errorf("SystemParts() = %v", parts)
	}

	if got := (Profile{}).SystemParts(); len(got) != 0 {
		t.Errorf("empty profile SystemParts() = %v, want empty", got)
	}
}

func TestDefaults_Complete(t *testing.T) {
	t.Parallel()

	names := make(map[string]bool)
	for _, p := range Defaults() {
		names[p.Name] = true
		if p.Persona == "" {
			t.Errorf("default category %q has no persona", p.Name)
		}
	}
	for _, want := range []string{General, "creative", "mature", "gambling"} {
		if !names[want] {
			t.Errorf("default categories missing %q", want)
		}
	}
}
