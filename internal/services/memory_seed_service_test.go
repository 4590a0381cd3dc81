package services

import (
	"strings"
	"testing"

	"chatnil/internal/models"
)

func boolPtr(b bool) *bool {
	return &b
}

func findCandidate(t *testing.T, candidates []models.MemoryCandidate, substring string) *models.MemoryCandidate {
	t.Helper()
	for i := range candidates {
		if strings.Contains(candidates[i].Content, substring) {
			return &candidates[i]
		}
	}
	t.Fatalf("no candidate containing %q in %+v", substring, candidates)
	return nil
}

func TestCandidatesFromEmptyProfile(t *testing.T) {
	candidates := CandidatesFromProfile(&models.AthleteProfile{UserID: "user-1"})
	if len(candidates) != 0 {
		t.Errorf("empty profile produced %d candidates: %+v", len(candidates), candidates)
	}
}

func TestCandidatesFromProfile(t *testing.T) {
	profile := &models.AthleteProfile{
		UserID:             "user-1",
		Sport:              "soccer",
		Position:           "midfielder",
		SecondarySports:    []string{"track"},
		School:             "State University",
		SchoolLevel:        "college",
		State:              "CA",
		GraduationYear:     2027,
		Major:              "Kinesiology",
		GPA:                3.6,
		Bio:                "Team captain who loves community volunteering",
		Achievements:       []string{"All-conference 2025"},
		FollowerCountTotal: 15000,
		NILInterests:       []string{"apparel", "local restaurants"},
		NILGoals:           []string{"Pay for grad school"},
		NILConcerns:        []string{"eligibility"},
		Preferences: &models.NILPreferences{
			PreferredDealTypes:  []string{"social media posts"},
			ContentTypesWilling: []string{"short video"},
			MinCompensation:     500,
			MaxCompensation:     5000,
			TravelWilling:       boolPtr(false),
			IndustriesAvoid:     []string{"gambling"},
		},
	}

	candidates := CandidatesFromProfile(profile)

	// Every populated field group produces exactly one candidate
	if len(candidates) != 16 {
		t.Fatalf("expected 16 candidates, got %d", len(candidates))
	}

	tests := []struct {
		name       string
		substring  string
		memType    models.MemoryType
		importance float64
	}{
		{name: "sport and position", substring: "Plays soccer as a midfielder", memType: models.MemoryTypeContext, importance: 0.95},
		{name: "secondary sports", substring: "Also plays: track", memType: models.MemoryTypeContext, importance: 0.6},
		{name: "school with level and state", substring: "Attends State University (college) in CA", memType: models.MemoryTypeContext, importance: 0.9},
		{name: "graduation year", substring: "graduation year: 2027", memType: models.MemoryTypeContext, importance: 0.7},
		{name: "major with gpa", substring: "Majoring in Kinesiology with a 3.60 GPA", memType: models.MemoryTypeContext, importance: 0.7},
		{name: "bio", substring: "community volunteering", memType: models.MemoryTypeContext, importance: 0.75},
		{name: "concerns", substring: "NIL concerns: eligibility", memType: models.MemoryTypeContext, importance: 0.85},
		{name: "achievements", substring: "All-conference 2025", memType: models.MemoryTypeFact, importance: 0.85},
		{name: "followers", substring: "15000 followers", memType: models.MemoryTypeFact, importance: 0.8},
		{name: "interests", substring: "apparel, local restaurants", memType: models.MemoryTypePreference, importance: 0.9},
		{name: "deal types", substring: "Preferred NIL deal types: social media posts", memType: models.MemoryTypePreference, importance: 0.9},
		{name: "content types", substring: "content types: short video", memType: models.MemoryTypePreference, importance: 0.8},
		{name: "compensation range", substring: "minimum $500 up to $5000", memType: models.MemoryTypePreference, importance: 0.75},
		{name: "travel preference", substring: "not willing to travel", memType: models.MemoryTypePreference, importance: 0.7},
		{name: "industries to avoid", substring: "Industries/brands to avoid: gambling", memType: models.MemoryTypePreference, importance: 0.85},
		{name: "goals", substring: "Pay for grad school", memType: models.MemoryTypeGoal, importance: 0.95},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := findCandidate(t, candidates, tt.substring)
			if c.Type != tt.memType {
				t.Errorf("type = %q, want %q", c.Type, tt.memType)
			}
			if c.Importance != tt.importance {
				t.Errorf("importance = %f, want %f", c.Importance, tt.importance)
			}
		})
	}
}

func TestCandidatesShortBioSkipped(t *testing.T) {
	profile := &models.AthleteProfile{UserID: "user-1", Bio: "Hi there"}
	candidates := CandidatesFromProfile(profile)
	if len(candidates) != 0 {
		t.Errorf("short bio should not produce a candidate: %+v", candidates)
	}
}

func TestCandidatesTravelWillingUnset(t *testing.T) {
	profile := &models.AthleteProfile{
		UserID:      "user-1",
		Preferences: &models.NILPreferences{},
	}
	candidates := CandidatesFromProfile(profile)
	if len(candidates) != 0 {
		t.Errorf("nil travel preference should produce nothing: %+v", candidates)
	}
}

func TestAllCandidatesPassValidation(t *testing.T) {
	profile := &models.AthleteProfile{
		UserID: "user-1",
		Sport:  "basketball",
		School: "Central High",
		Preferences: &models.NILPreferences{
			TravelWilling: boolPtr(true),
		},
	}
	for _, c := range CandidatesFromProfile(profile) {
		if !models.ValidMemoryType(c.Type) {
			t.Errorf("candidate has invalid type %q", c.Type)
		}
		if c.Importance < 0.5 || c.Importance > 1.0 {
			t.Errorf("candidate importance %f outside [0.5, 1.0]", c.Importance)
		}
		if c.Content == "" {
			t.Error("candidate has empty content")
		}
	}
}
