// Package category defines conversation category profiles: the persona
// and rules that shape the system prompt, the age-gate and content
// restrictions that apply, and the follow-up suggestions offered after a
// reply.
package category

import (
	"fmt"
	"sync"
)

// General is the fallback category for unknown or empty requests.
const General = "general"

// Profile describes one conversation category.
type Profile struct {
	// Name is the request-facing identifier.
	Name string `yaml:"name"`

	// Persona opens the system prompt.
	Persona string `yaml:"persona"`

	// Rules are category conduct rules appended to the system prompt.
	Rules string `yaml:"rules"`

	// Disclaimer is appended to replies that lack it.
	Disclaimer string `yaml:"disclaimer"`

	// AgeGated requires a passed eligibility check before serving.
	AgeGated bool `yaml:"age_gated"`

	// Restricted marks content the compliance classifier also escalates
	// to. Restricted implies AgeGated.
	Restricted bool `yaml:"restricted"`

	// Knowledge enables snippet lookup during context assembly.
	Knowledge bool `yaml:"knowledge"`

	// FollowUps are suggestion templates returned with each reply.
	FollowUps []string `yaml:"follow_ups"`

	// Model and Backend override the defaults when set.
	Model   string `yaml:"model"`
	Backend string `yaml:"backend"`
}

// SystemParts returns the profile's contribution to the system prompt.
func (p Profile) SystemParts() []string {
	parts := make([]string, 0, 2)
	if p.Persona != "" {
		parts = append(parts, p.Persona)
	}
	if p.Rules != "" {
		parts = append(parts, p.Rules)
	}
	return parts
}

// Defaults returns the built-in category profiles.
func Defaults() []Profile {
	return []Profile{
		{
			Name:      General,
			Persona:   "You are a friendly, knowledgeable companion. Keep answers concise and conversational.",
			Rules:     "Decline requests for adult or gambling content in this category and suggest switching to the appropriate category instead.",
			Knowledge: false,
			FollowUps: []string{
				"Ask a follow-up question",
				"Change the topic",
			},
		},
		{
			Name:      "creative",
			Persona:   "You are an imaginative creative-writing partner. Match the user's tone and build on their ideas.",
			Rules:     "Keep content within a general audience rating. Redirect explicit requests to the mature category.",
			Knowledge: true,
			FollowUps: []string{
				"Continue the story",
				"Try a different style",
				"Describe a character in more detail",
			},
		},
		{
			Name:       "mature",
			Persona:    "You are a companion for adult conversation with verified users.",
			Rules:      "Never produce content involving minors, non-consent, or illegal activity. Stay within platform policy.",
			Disclaimer: "This conversation is for verified adults.",
			AgeGated:   true,
			Restricted: true,
			FollowUps: []string{
				"Change the subject",
				"Adjust the tone",
			},
		},
		{
			Name:       "gambling",
			Persona:    "You are a games and odds analyst. Explain probability, strategy, and bankroll concepts clearly.",
			Rules:      "Provide analysis and education only. Never encourage wagering, promise outcomes, or handle real-money transactions.",
			Disclaimer: "Gambling involves risk. This is analysis, not betting advice.",
			AgeGated:   true,
			Restricted: true,
			Knowledge:  true,
			FollowUps: []string{
				"Explain the odds in more depth",
				"Compare a different strategy",
			},
		},
	}
}

// Registry holds category profiles and resolves request categories to
// them, falling back to the general profile for unknown names.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

// NewRegistry creates a Registry preloaded with the default profiles.
func NewRegistry() *Registry {
	r := &Registry{profiles: make(map[string]Profile)}
	for _, p := range Defaults() {
		r.profiles[p.Name] = normalize(p)
	}
	return r
}

// normalize enforces the restricted-implies-age-gated invariant.
func normalize(p Profile) Profile {
	if p.Restricted {
		p.AgeGated = true
	}
	return p
}

// Register adds or replaces a profile. The name must be non-empty.
func (r *Registry) Register(p Profile) error {
	if p.Name == "" {
		return fmt.Errorf("category: profile with empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.Name] = normalize(p)
	return nil
}

// Get returns the profile for a name.
func (r *Registry) Get(name string) (Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[name]
	return p, ok
}

// Resolve returns the profile for a requested category. Empty or unknown
// names resolve to the general profile, so a malformed category never
// fails a request.
func (r *Registry) Resolve(name string) Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.profiles[name]; ok {
		return p
	}
	return r.profiles[General]
}

// Names returns the registered category names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	return names
}
