// Package transcript turns raw interview transcripts into ordered
// question and answer pairs.
//
// Parsing is layered: explicit speaker labels are tried first, then
// paragraph alternation, then sentence splitting. Each fallback runs
// only when the previous strategy produced nothing.
package transcript

import (
	"regexp"
	"strings"
)

// QAPair is one interviewer question with the candidate's answer.
type QAPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// minSideLen is the minimum trimmed length of each side of a pair.
// Shorter fragments ("Hi", "Ok") carry no evaluable content.
const minSideLen = 10

// maxPositionalPairs caps the sentence-splitting fallback, which has
// no structural signal to stop on.
const maxPositionalPairs = 10

type speaker int

const (
	speakerNone speaker = iota
	speakerInterviewer
	speakerCandidate
)

var labelRe = regexp.MustCompile(`(?i)^\s*(ai|interviewer|agent|user|candidate)\s*:\s*(.*)$`)

var speakerLabels = map[string]speaker{
	"ai":          speakerInterviewer,
	"interviewer": speakerInterviewer,
	"agent":       speakerInterviewer,
	"user":        speakerCandidate,
	"candidate":   speakerCandidate,
}

var questionWords = []string{
	"what", "how", "why", "when", "where", "who",
	"can", "could", "would", "should",
	"tell", "describe", "explain",
}

// Parse extracts ordered question and answer pairs from a raw
// transcript. It returns an empty slice when nothing usable is found.
func Parse(raw string) []QAPair {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil
	}

	pairs := parseSpeakerLabels(text)
	if len(pairs) == 0 {
		pairs = parseParagraphs(text)
	}
	if len(pairs) == 0 {
		pairs = parseSentences(text)
	}

	return filterShort(pairs)
}

// parseSpeakerLabels handles transcripts with explicit "Speaker: text"
// lines. Consecutive same-speaker lines merge into one turn; unlabeled
// lines continue whichever speaker last held the floor.
func parseSpeakerLabels(text string) []QAPair {
	var (
		pairs    []QAPair
		question []string
		answer   []string
		current  speaker
	)

	flush := func() {
		if len(question) > 0 && len(answer) > 0 {
			pairs = append(pairs, QAPair{
				Question: strings.Join(question, " "),
				Answer:   strings.Join(answer, " "),
			})
		}
		question = nil
		answer = nil
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		who := current
		content := line
		if m := labelRe.FindStringSubmatch(line); m != nil {
			who = speakerLabels[strings.ToLower(m[1])]
			content = strings.TrimSpace(m[2])
		}

		switch who {
		case speakerInterviewer:
			// a new interviewer turn after a completed answer closes
			// the previous pair
			if len(answer) > 0 {
				flush()
			}
			if content != "" {
				question = append(question, content)
			}
		case speakerCandidate:
			if content != "" {
				answer = append(answer, content)
			}
		}
		current = who
	}
	flush()

	return pairs
}

// parseParagraphs pairs blank-line-separated paragraphs as alternating
// question and answer turns.
func parseParagraphs(text string) []QAPair {
	blocks := splitParagraphs(text)
	if len(blocks) < 2 {
		return nil
	}

	var pairs []QAPair
	for i := 0; i+1 < len(blocks); {
		if i == 0 || looksLikeQuestion(blocks[i]) {
			pairs = append(pairs, QAPair{Question: blocks[i], Answer: blocks[i+1]})
			i += 2
		} else {
			i++
		}
	}
	return pairs
}

func splitParagraphs(text string) []string {
	var blocks []string
	for _, block := range regexp.MustCompile(`\n\s*\n`).Split(text, -1) {
		block = strings.TrimSpace(strings.ReplaceAll(block, "\n", " "))
		if block != "" {
			blocks = append(blocks, block)
		}
	}
	return blocks
}

func looksLikeQuestion(s string) bool {
	if strings.Contains(s, "?") {
		return true
	}
	lower := strings.ToLower(s)
	for _, w := range questionWords {
		if strings.HasPrefix(lower, w+" ") || strings.HasPrefix(lower, w+",") {
			return true
		}
	}
	return false
}

var sentenceRe = regexp.MustCompile(`[^.?!]+[.?!]?`)

// parseSentences is the last resort for unstructured text. When the
// transcript contains question marks, each question sentence pairs with
// the sentence that follows it; otherwise sentences pair positionally.
func parseSentences(text string) []QAPair {
	var sentences []string
	for _, s := range sentenceRe.FindAllString(text, -1) {
		s = strings.TrimSpace(s)
		if s != "" {
			sentences = append(sentences, s)
		}
	}
	if len(sentences) < 2 {
		return nil
	}

	var pairs []QAPair
	if strings.Contains(text, "?") {
		for i := 0; i+1 < len(sentences); i++ {
			if strings.HasSuffix(sentences[i], "?") {
				pairs = append(pairs, QAPair{Question: sentences[i], Answer: sentences[i+1]})
			}
		}
		return pairs
	}

	for i := 0; i+1 < len(sentences) && len(pairs) < maxPositionalPairs; i += 2 {
		q, a := sentences[i], sentences[i+1]
		if len(q) >= minSideLen && len(a) >= minSideLen {
			pairs = append(pairs, QAPair{Question: q, Answer: a})
		}
	}
	return pairs
}

// filterShort drops pairs where either side is too short to evaluate.
func filterShort(pairs []QAPair) []QAPair {
	out := make([]QAPair, 0, len(pairs))
	for _, p := range pairs {
		q := strings.TrimSpace(p.Question)
		a := strings.TrimSpace(p.Answer)
		if len(q) < minSideLen || len(a) < minSideLen {
			continue
		}
		out = append(out, QAPair{Question: q, Answer: a})
	}
	return out
}
