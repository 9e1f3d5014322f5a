package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/Kaniroj/New-AI-Kanilla/internal/models"
)

var (
	codeFence     = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
	sentenceEnd   = regexp.MustCompile(`[.!?]+["')\]]*(\s+|$)`)
)

// rawAnswer accepts the canonical shape plus the older filename/filepath one.
type rawAnswer struct {
	Answer   *string         `json:"answer"`
	Sources  json.RawMessage `json:"sources"`
	Filename string          `json:"filename"`
}

// parseAnswer extracts an answer record from the model's final message,
// tolerating code fences, surrounding prose and trailing commas.
func parseAnswer(content string) (*models.AnswerRecord, error) {
	text := strings.TrimSpace(content)
	if text == "" {
		return nil, errors.New("empty reply")
	}
	if m := codeFence.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		text = text[start : end+1]
	} else {
		return nil, errors.New("no JSON object found")
	}

	var raw rawAnswer
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		if err2 := json.Unmarshal([]byte(trailingComma.ReplaceAllString(text, "$1")), &raw); err2 != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
	}
	if raw.Answer == nil {
		return nil, errors.New(`missing "answer" field`)
	}
	if strings.TrimSpace(*raw.Answer) == "" {
		return nil, errors.New(`empty "answer" field`)
	}

	sources, err := decodeSources(raw.Sources)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 && raw.Filename != "" {
		sources = []string{raw.Filename}
	}
	return &models.AnswerRecord{Answer: strings.TrimSpace(*raw.Answer), Sources: sources}, nil
}

func decodeSources(data json.RawMessage) ([]string, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		return strings.Split(single, ","), nil
	}
	return nil, errors.New(`"sources" must be a list of strings`)
}

// ground restricts the record to what this turn actually retrieved. Sources
// that name no surfaced chunk are dropped; with nothing surfaced at all the
// answer becomes the decline message.
func ground(record *models.AnswerRecord, turn *Turn, maxSentences int) *models.AnswerRecord {
	if len(turn.Surfaced) == 0 {
		return &models.AnswerRecord{Answer: DeclineMessage, Sources: []string{}}
	}

	surfaced := map[string]bool{}
	byDocument := map[string][]string{}
	for _, c := range turn.Surfaced {
		surfaced[c.Citation()] = true
		byDocument[c.DocumentID] = append(byDocument[c.DocumentID], c.Citation())
	}

	sources := []string{}
	seen := map[string]bool{}
	for _, src := range record.Sources {
		for _, citation := range resolveSource(src, surfaced, byDocument) {
			if !seen[citation] {
				seen[citation] = true
				sources = append(sources, citation)
			}
		}
	}

	return &models.AnswerRecord{
		Answer:  truncateSentences(record.Answer, maxSentences),
		Sources: sources,
	}
}

// resolveSource maps one model-written source to surfaced citations. It
// accepts "doc#3", the chunk id "doc_3", file names like "doc.md#3" and a bare
// document id, which stands for every surfaced chunk of that document.
func resolveSource(src string, surfaced map[string]bool, byDocument map[string][]string) []string {
	src = strings.Trim(strings.TrimSpace(src), "\"'`[]()")
	if src == "" {
		return nil
	}

	if i := strings.LastIndex(src, "#"); i >= 0 {
		if idx, err := strconv.Atoi(strings.TrimSpace(src[i+1:])); err == nil {
			if c := models.Citation(documentName(src[:i]), idx); surfaced[c] {
				return []string{c}
			}
			return nil
		}
		src = src[:i]
	}

	if doc, idx, ok := models.SplitChunkID(src); ok {
		if c := models.Citation(doc, idx); surfaced[c] {
			return []string{c}
		}
	}
	return byDocument[documentName(src)]
}

// documentName strips directories and a transcript file extension.
func documentName(s string) string {
	s = path.Base(strings.ReplaceAll(strings.TrimSpace(s), "\\", "/"))
	for _, ext := range []string{".md", ".txt", ".html"} {
		s = strings.TrimSuffix(s, ext)
	}
	return s
}

// truncateSentences keeps at most limit sentences of text.
func truncateSentences(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	ends := sentenceEnd.FindAllStringIndex(text, -1)
	if len(ends) <= limit {
		return text
	}
	return strings.TrimSpace(text[:ends[limit-1][1]])
}
