package domain

// Section is one specialist's attributed contribution to the final answer.
type Section struct {
	Specialist string `json:"specialist"`
	Text       string `json:"text"`
	Partial    bool   `json:"partial,omitempty"`
}

// FinalAnswer is the aggregated output of one query.
type FinalAnswer struct {
	QueryID    string    `json:"query_id"`
	Query      string    `json:"query"`
	Sections   []Section `json:"sections"`
	Summary    *Section  `json:"summary,omitempty"`
	Incomplete bool      `json:"incomplete"`
	Messages   []Message `json:"-"` // full trace, for provenance rendering
}

// Specialists returns the section owners in order.
func (a *FinalAnswer) Specialists() []string {
	names := make([]string, len(a.Sections))
	for i, s := range a.Sections {
		names[i] = s.Specialist
	}
	return names
}
