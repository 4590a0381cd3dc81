package models

// UserContext carries the caller-supplied profile hints that accompany a
// chat request. The transport layer owns authentication; this is display
// and scoping data only.
type UserContext struct {
	Role        Role   `json:"role"`
	Name        string `json:"name,omitempty"`
	State       string `json:"state,omitempty"`
	Sport       string `json:"sport,omitempty"`
	SchoolLevel string `json:"school_level,omitempty"`
}

// Citation is one source reference from the live-search provider.
type Citation struct {
	Title string `json:"title,omitempty"`
	URL   string `json:"url"`
}

// RealtimeResult is the outcome of a live web search.
type RealtimeResult struct {
	Content   string     `json:"content"`
	Citations []Citation `json:"citations,omitempty"`
}

// Provenance enumerates which branches contributed to a composed context.
type Provenance struct {
	Memories  []MemorySourceRef    `json:"memories,omitempty"`
	Sessions  []SessionSourceRef   `json:"sessions,omitempty"`
	Knowledge []KnowledgeSourceRef `json:"knowledge,omitempty"`
	Realtime  bool                 `json:"realtime"`
	Citations []Citation           `json:"citations,omitempty"`
}

// MemorySourceRef identifies a memory that contributed to the context.
type MemorySourceRef struct {
	Type    MemoryType `json:"type"`
	Content string     `json:"content"` // truncated preview
}

// SessionSourceRef identifies a past session whose summary contributed.
type SessionSourceRef struct {
	SessionID string `json:"session_id"`
	Title     string `json:"title,omitempty"`
}

// KnowledgeSourceRef identifies a knowledge entry that contributed.
type KnowledgeSourceRef struct {
	Title    string `json:"title"`
	Category string `json:"category,omitempty"`
}

// ComposedContext is the merged retrieval result for one query. Sections
// appear in the fixed order memory, sessions, realtime, knowledge; empty
// sections are omitted from the combined text but the order of the
// remaining ones never changes.
type ComposedContext struct {
	MemorySection    string     `json:"memory_section,omitempty"`
	SessionSection   string     `json:"session_section,omitempty"`
	RealtimeSection  string     `json:"realtime_section,omitempty"`
	KnowledgeSection string     `json:"knowledge_section,omitempty"`
	Provenance       Provenance `json:"provenance"`
}

// Combined returns the concatenated context text in merge order.
func (c *ComposedContext) Combined() string {
	var out string
	for _, s := range []string{c.MemorySection, c.SessionSection, c.RealtimeSection, c.KnowledgeSection} {
		if s == "" {
			continue
		}
		if out != "" {
			out += "\n\n"
		}
		out += s
	}
	return out
}

// Empty reports whether no branch contributed anything.
func (c *ComposedContext) Empty() bool {
	return c.MemorySection == "" && c.SessionSection == "" &&
		c.RealtimeSection == "" && c.KnowledgeSection == ""
}
