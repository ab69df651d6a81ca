// Package interview builds provider prompts and init payloads from a
// candidate's profile. The context is supplied by the client at interview
// start and is never persisted here.
package interview

import "strings"

// CandidateContext is the per-session candidate profile used to
// personalize the interviewer.
type CandidateContext struct {
	Name         string   `json:"name"`
	Major        string   `json:"major"`
	AcademicYear string   `json:"academicYear"`
	Skills       []string `json:"skills"`
	Experience   string   `json:"experience"`
	Education    string   `json:"education"`
	Summary      string   `json:"summary"`
}

// ResumeText assembles the free-text résumé sent to providers that take a
// single blob. Summary leads, experience follows.
func (c CandidateContext) ResumeText() string {
	var parts []string
	if s := strings.TrimSpace(c.Summary); s != "" {
		parts = append(parts, s)
	}
	if e := strings.TrimSpace(c.Experience); e != "" {
		parts = append(parts, e)
	}
	return strings.Join(parts, "\n\n")
}
