// Package scoring evaluates interview transcripts with an LLM.
//
// A Scorer takes parsed question and answer pairs plus optional
// candidate context and returns a structured evaluation. Providers are
// interchangeable and can be chained for fallback:
//
//	gemini, _ := scoring.NewGemini(scoring.WithAPIKey(geminiKey))
//	openai, _ := scoring.NewOpenAI(scoring.WithAPIKey(openaiKey))
//	scorer, _ := scoring.NewChain(gemini, openai)
//	result, err := scorer.Score(ctx, &scoring.Request{Questions: pairs})
package scoring

import (
	"context"
	"fmt"
	"strings"

	"github.com/voxprep/go-voxprep/pkg/transcript"
)

// Request carries a parsed transcript and optional candidate context.
// Context fields are best effort; scoring proceeds without them.
type Request struct {
	Role       string              `json:"role,omitempty"`
	Major      string              `json:"major,omitempty"`
	ResumeText string              `json:"resume_text,omitempty"`
	Questions  []transcript.QAPair `json:"questions"`
}

// QuestionResult is the evaluation of a single answer.
type QuestionResult struct {
	Question           string   `json:"question"`
	Answer             string   `json:"answer"`
	Score              int      `json:"score"`
	Strengths          []string `json:"strengths"`
	Improvements       []string `json:"improvements"`
	SampleBetterAnswer string   `json:"sample_better_answer,omitempty"`
}

// Result is the full evaluation of an interview.
type Result struct {
	OverallScore        int              `json:"overall_score"`
	OverallStrengths    []string         `json:"overall_strengths"`
	OverallImprovements []string         `json:"overall_improvements"`
	Questions           []QuestionResult `json:"questions"`
}

// Scorer evaluates an interview transcript.
type Scorer interface {
	// Name identifies the scoring provider.
	Name() string

	// Score evaluates the transcript. The context bounds the external
	// LLM call.
	Score(ctx context.Context, req *Request) (*Result, error)
}

// Validate checks a result for structural sanity.
func (r *Result) Validate() error {
	if r.OverallScore < 0 || r.OverallScore > 100 {
		return fmt.Errorf("scoring: overall score %d out of range", r.OverallScore)
	}
	if len(r.Questions) == 0 {
		return ErrNoQuestionScores
	}
	for i := range r.Questions {
		if r.Questions[i].Score < 0 || r.Questions[i].Score > 100 {
			return fmt.Errorf("scoring: question %d score %d out of range", i+1, r.Questions[i].Score)
		}
	}
	return nil
}

// buildPrompt renders the evaluation prompt shared by all providers.
func buildPrompt(req *Request) string {
	var b strings.Builder

	b.WriteString("You are a senior hiring manager evaluating a mock interview. ")
	b.WriteString(fmt.Sprintf("The transcript below contains %d question-and-answer pairs.\n\n", len(req.Questions)))

	if req.Role != "" {
		b.WriteString(fmt.Sprintf("The candidate is interviewing for a %s position.\n", req.Role))
	}
	if req.Major != "" {
		b.WriteString(fmt.Sprintf("The candidate's field of study is %s.\n", req.Major))
	}
	if req.ResumeText != "" {
		b.WriteString("Candidate background:\n")
		b.WriteString(req.ResumeText)
		b.WriteString("\n")
	}

	b.WriteString("\nInterview Transcript:\n\n")
	for i, qa := range req.Questions {
		b.WriteString(fmt.Sprintf("Q%d: %s\n", i+1, qa.Question))
		b.WriteString(fmt.Sprintf("A%d: %s\n\n", i+1, qa.Answer))
	}

	b.WriteString(fmt.Sprintf(`For EACH of the %d questions, provide:
1. A score from 0-100 for the answer's substance, structure, and relevance.
2. Specific strengths of the answer.
3. Specific improvements the candidate should make.
4. Optionally, a short sample of a stronger answer.

Then provide an overall score from 0-100 and overall strengths and improvements across the whole interview.

Respond with ONLY a JSON object in exactly this format:
{
  "overall_score": 72,
  "overall_strengths": ["clear communication", "concrete examples"],
  "overall_improvements": ["quantify impact", "structure answers with a framework"],
  "questions": [
    {
      "question": "...",
      "answer": "...",
      "score": 70,
      "strengths": ["..."],
      "improvements": ["..."],
      "sample_better_answer": "..."
    }
  ]
}

Include all %d questions in the questions array, in transcript order.`, len(req.Questions), len(req.Questions)))

	return b.String()
}

// extractJSON pulls the JSON object out of an LLM reply, tolerating
// markdown code fences and surrounding prose.
func extractJSON(text string) (string, error) {
	text = strings.TrimSpace(text)

	if start := strings.Index(text, "```"); start >= 0 {
		rest := text[start+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end >= 0 {
			text = strings.TrimSpace(rest[:end])
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", ErrMalformedResponse
	}
	return text[start : end+1], nil
}
