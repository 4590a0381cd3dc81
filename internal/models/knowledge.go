package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role identifies what kind of user is asking. It scopes knowledge entries
// and response-cache keys.
type Role string

const (
	RoleAthlete     Role = "athlete"
	RoleParent      Role = "parent"
	RoleCoach       Role = "coach"
	RoleSchoolAdmin Role = "school_admin"
	RoleAgency      Role = "agency"
)

// Knowledge content types. Quiz content is only reachable through the
// study-material accessor, never through general search.
const (
	ContentTypeArticle  = "article"
	ContentTypeStateLaw = "state_law"
	ContentTypeFAQ      = "faq"
	ContentTypeQuiz     = "quiz_question"
)

// KnowledgeEntry is a curated knowledge-base row. The pipeline only reads
// and ranks these; curation happens in an external process.
type KnowledgeEntry struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title       string             `bson:"title" json:"title"`
	Body        string             `bson:"body" json:"body"`
	ContentType string             `bson:"contentType" json:"content_type"`
	Category    string             `bson:"category,omitempty" json:"category,omitempty"`

	// Topic groups quiz study material (e.g. "contracts", "disclosure").
	Topic string `bson:"topic,omitempty" json:"topic,omitempty"`

	// TargetRoles lists the roles an entry is visible to. Empty means all.
	TargetRoles []Role `bson:"targetRoles,omitempty" json:"target_roles,omitempty"`

	UpdatedAt time.Time `bson:"updatedAt" json:"updated_at"`

	// Similarity is populated on search results only, never persisted.
	Similarity float64 `bson:"-" json:"similarity,omitempty"`
}

// VisibleTo reports whether the entry may be shown to the given role.
func (e *KnowledgeEntry) VisibleTo(role Role) bool {
	if len(e.TargetRoles) == 0 {
		return true
	}
	for _, r := range e.TargetRoles {
		if r == role {
			return true
		}
	}
	return false
}

// IsQuizContent reports whether the entry is quiz/assessment material.
func (e *KnowledgeEntry) IsQuizContent() bool {
	return e.ContentType == ContentTypeQuiz
}
