package interview

import (
	"fmt"
	"strings"
)

// Major categories used to pick technical topics.
const (
	CategoryComputerScience = "computer science"
	CategoryFinance         = "finance"
	CategoryEngineering     = "engineering"
	CategoryBusiness        = "business"
	CategoryPsychology      = "psychology"
	CategoryGeneral         = "general"
)

// technicalTopics maps a major category to the domains the interviewer may
// draw technical questions from.
var technicalTopics = map[string][]string{
	CategoryComputerScience: {
		"data structures and algorithms",
		"object-oriented design",
		"debugging and testing practices",
		"databases and SQL",
		"operating systems and networking basics",
		"a project from the candidate's experience",
	},
	CategoryFinance: {
		"financial statements and the three-statement model",
		"valuation basics (DCF, comparables)",
		"time value of money",
		"markets and current events",
		"Excel modeling scenarios",
	},
	CategoryEngineering: {
		"engineering design process",
		"problem-solving under constraints",
		"relevant coursework projects",
		"units, estimation, and sanity checks",
	},
	CategoryBusiness: {
		"market sizing and case-style questions",
		"marketing funnels and metrics",
		"competitive analysis",
		"a business project or internship from experience",
	},
	CategoryPsychology: {
		"research methods and experimental design",
		"statistics fundamentals",
		"ethics in research",
	},
	CategoryGeneral: {
		"problem-solving from the candidate's coursework",
		"projects listed in their experience",
		"analytical reasoning",
	},
}

// MajorCategory classifies a free-text major into a topic category.
func MajorCategory(major string) string {
	m := strings.ToLower(major)
	switch {
	case strings.Contains(m, "computer") || strings.Contains(m, "software") ||
		strings.Contains(m, "data science") || strings.Contains(m, "information"):
		return CategoryComputerScience
	case strings.Contains(m, "finance") || strings.Contains(m, "accounting") ||
		strings.Contains(m, "economics"):
		return CategoryFinance
	case strings.Contains(m, "engineer"):
		return CategoryEngineering
	case strings.Contains(m, "business") || strings.Contains(m, "marketing") ||
		strings.Contains(m, "management"):
		return CategoryBusiness
	case strings.Contains(m, "psych"):
		return CategoryPsychology
	default:
		return CategoryGeneral
	}
}

// TargetRole infers the role the candidate is practicing for from their
// major.
func TargetRole(major string) string {
	m := strings.ToLower(major)
	switch {
	case strings.Contains(m, "computer") || strings.Contains(m, "software"):
		return "Software Engineer"
	case strings.Contains(m, "finance") || strings.Contains(m, "accounting"):
		return "Financial Analyst"
	case strings.Contains(m, "engineer"):
		return "Engineer"
	case strings.Contains(m, "business") || strings.Contains(m, "marketing"):
		return "Business Analyst"
	default:
		return "Professional"
	}
}

// gradeLevels is the fixed academic-year label lookup.
var gradeLevels = map[string]string{
	"high school": "High School Student",
	"freshman":    "College Freshman",
	"sophomore":   "College Sophomore",
	"junior":      "College Junior",
	"senior":      "College Senior",
	"graduate":    "Graduate Student",
}

// GradeLevel maps an academic year to a human-readable label.
func GradeLevel(year string) string {
	y := strings.ToLower(strings.TrimSpace(year))
	for key, label := range gradeLevels {
		if strings.Contains(y, key) {
			return label
		}
	}
	return "Student"
}

// BehavioralRatio returns the percentage of behavioral (vs technical)
// questions for an academic year. Early-stage candidates get mostly
// behavioral questions; seniors and graduate students get a technical
// skew.
func BehavioralRatio(year string) int {
	y := strings.ToLower(year)
	switch {
	case strings.Contains(y, "high school"):
		return 70
	case strings.Contains(y, "freshman"):
		return 65
	case strings.Contains(y, "senior"), strings.Contains(y, "graduate"):
		return 40
	default:
		return 50
	}
}

// SystemPrompt builds the interviewer system instructions from a
// candidate's profile.
func SystemPrompt(c CandidateContext) string {
	category := MajorCategory(c.Major)
	role := TargetRole(c.Major)
	behavioral := BehavioralRatio(c.AcademicYear)
	topics := technicalTopics[category]

	var b strings.Builder

	b.WriteString("You are a warm, encouraging interview coach conducting a practice ")
	fmt.Fprintf(&b, "interview for a %s position.\n\n", role)

	b.WriteString("CANDIDATE PROFILE:\n")
	if c.Name != "" {
		fmt.Fprintf(&b, "- Name: %s\n", c.Name)
	}
	if c.Major != "" {
		fmt.Fprintf(&b, "- Major: %s\n", c.Major)
	}
	if c.AcademicYear != "" {
		fmt.Fprintf(&b, "- Academic year: %s (%s)\n", c.AcademicYear, GradeLevel(c.AcademicYear))
	}
	if len(c.Skills) > 0 {
		fmt.Fprintf(&b, "- Skills: %s\n", strings.Join(c.Skills, ", "))
	}
	if c.Experience != "" {
		fmt.Fprintf(&b, "- Experience: %s\n", c.Experience)
	}
	if c.Education != "" {
		fmt.Fprintf(&b, "- Education: %s\n", c.Education)
	}
	if c.Summary != "" {
		fmt.Fprintf(&b, "- Summary: %s\n", c.Summary)
	}

	fmt.Fprintf(&b, "\nQUESTION MIX: roughly %d%% behavioral and %d%% technical questions.\n",
		behavioral, 100-behavioral)

	fmt.Fprintf(&b, "\nTECHNICAL TOPICS (%s): draw technical questions only from:\n", category)
	for _, topic := range topics {
		fmt.Fprintf(&b, "- %s\n", topic)
	}
	b.WriteString("Do NOT ask technical questions outside the candidate's field.\n")

	b.WriteString(`
STRUCTURE: a 15-20 minute interview.
1. Open with a brief welcome and an easy icebreaker.
2. Alternate behavioral and technical questions per the mix above,
   referencing the candidate's own skills and experience where possible.
3. Close by inviting questions from the candidate and a short wrap-up.

TONE: supportive and conversational. Ask one question at a time, listen to
the full answer, and give the candidate room to think. Never berate or
talk over the candidate.`)

	return b.String()
}

// InitVariables maps the candidate context into the flat key/value shape
// expected by the ElevenLabs conversation-initiation payload.
func InitVariables(c CandidateContext) map[string]string {
	return map[string]string{
		"candidate_name": c.Name,
		"major":          c.Major,
		"grade_level":    GradeLevel(c.AcademicYear),
		"target_role":    TargetRole(c.Major),
		"resume_text":    c.ResumeText(),
		"skills":         strings.Join(c.Skills, ", "),
	}
}
