package models

import "testing"

func TestVisibleTo(t *testing.T) {
	tests := []struct {
		name    string
		entry   KnowledgeEntry
		role    Role
		visible bool
	}{
		{
			name:    "no target roles means visible to all",
			entry:   KnowledgeEntry{},
			role:    RoleAthlete,
			visible: true,
		},
		{
			name:    "matching role",
			entry:   KnowledgeEntry{TargetRoles: []Role{RoleParent, RoleCoach}},
			role:    RoleCoach,
			visible: true,
		},
		{
			name:    "non-matching role",
			entry:   KnowledgeEntry{TargetRoles: []Role{RoleParent}},
			role:    RoleAthlete,
			visible: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.entry.VisibleTo(tt.role); got != tt.visible {
				t.Errorf("VisibleTo(%q) = %v, want %v", tt.role, got, tt.visible)
			}
		})
	}
}

func TestIsQuizContent(t *testing.T) {
	quiz := KnowledgeEntry{ContentType: ContentTypeQuiz}
	if !quiz.IsQuizContent() {
		t.Error("quiz entry not detected")
	}

	for _, ct := range []string{ContentTypeArticle, ContentTypeStateLaw, ContentTypeFAQ, ""} {
		entry := KnowledgeEntry{ContentType: ct}
		if entry.IsQuizContent() {
			t.Errorf("content type %q flagged as quiz", ct)
		}
	}
}
