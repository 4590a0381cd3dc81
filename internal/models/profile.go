package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AthleteProfile is the structured onboarding profile used for one-time
// memory seeding. Profile curation is owned by the onboarding flow; the
// pipeline only reads it.
type AthleteProfile struct {
	ID     primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID string             `bson:"userId" json:"user_id"`

	Sport           string   `bson:"sport,omitempty" json:"sport,omitempty"`
	Position        string   `bson:"position,omitempty" json:"position,omitempty"`
	SecondarySports []string `bson:"secondarySports,omitempty" json:"secondary_sports,omitempty"`

	School         string `bson:"school,omitempty" json:"school,omitempty"`
	SchoolLevel    string `bson:"schoolLevel,omitempty" json:"school_level,omitempty"`
	State          string `bson:"state,omitempty" json:"state,omitempty"`
	GraduationYear int    `bson:"graduationYear,omitempty" json:"graduation_year,omitempty"`
	Major          string `bson:"major,omitempty" json:"major,omitempty"`
	GPA            float64 `bson:"gpa,omitempty" json:"gpa,omitempty"`

	Bio          string   `bson:"bio,omitempty" json:"bio,omitempty"`
	Achievements []string `bson:"achievements,omitempty" json:"achievements,omitempty"`

	FollowerCountTotal int64 `bson:"followerCountTotal,omitempty" json:"follower_count_total,omitempty"`

	NILInterests []string        `bson:"nilInterests,omitempty" json:"nil_interests,omitempty"`
	NILGoals     []string        `bson:"nilGoals,omitempty" json:"nil_goals,omitempty"`
	NILConcerns  []string        `bson:"nilConcerns,omitempty" json:"nil_concerns,omitempty"`
	Preferences  *NILPreferences `bson:"nilPreferences,omitempty" json:"nil_preferences,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"created_at"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updated_at"`
}

// NILPreferences holds the detailed deal preferences from onboarding.
type NILPreferences struct {
	PreferredDealTypes  []string `bson:"preferredDealTypes,omitempty" json:"preferred_deal_types,omitempty"`
	ContentTypesWilling []string `bson:"contentTypesWilling,omitempty" json:"content_types_willing,omitempty"`
	MinCompensation     int64    `bson:"minCompensation,omitempty" json:"min_compensation,omitempty"`
	MaxCompensation     int64    `bson:"maxCompensation,omitempty" json:"max_compensation,omitempty"`
	TravelWilling       *bool    `bson:"travelWilling,omitempty" json:"travel_willing,omitempty"`
	IndustriesAvoid     []string `bson:"industriesAvoid,omitempty" json:"industries_avoid,omitempty"`
}
