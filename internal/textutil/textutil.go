// Package textutil holds the best-effort text heuristics shared by the
// scoring passes: cleanup, experience estimation, and identity extraction.
// All of it is approximate by nature; callers treat the results as hints.
package textutil

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

var (
	urlRe   = regexp.MustCompile(`http\S+`)
	punctRe = regexp.MustCompile(`[^\p{L}\p{N}_\s@.+-]`)
	spaceRe = regexp.MustCompile(`\s+`)

	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phoneRe = regexp.MustCompile(`(?:\+?\d{1,3}[\s.-]?)?(?:\(\d{2,4}\)[\s.-]?)?\d{3,4}[\s.-]?\d{3,4}(?:[\s.-]?\d{2,4})?`)

	yearPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\+?\s*(?:years?|yrs?)`),
		regexp.MustCompile(`(?i)experience\s*:\s*(\d+(?:\.\d+)?)`),
	}
)

// CleanText sanitizes raw document text: strips URLs and punctuation,
// collapses whitespace, repairs spaced-out OCR output, and lowercases.
func CleanText(text string) string {
	text = urlRe.ReplaceAllString(text, "")
	text = punctRe.ReplaceAllString(text, " ")
	text = spaceRe.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)

	// OCR sometimes emits "s q l" instead of "sql". When most tokens are
	// single characters, merge runs of adjacent single-character tokens
	// back into words.
	tokens := strings.Fields(text)
	if len(tokens) > 10 {
		single := 0
		for _, t := range tokens {
			if len(t) == 1 {
				single++
			}
		}
		if float64(single)/float64(len(tokens)) > 0.4 {
			text = collapseSpacedChars(tokens)
		}
	}

	return strings.ToLower(text)
}

func collapseSpacedChars(tokens []string) string {
	var out []string
	var run strings.Builder
	flush := func() {
		if run.Len() > 0 {
			out = append(out, run.String())
			run.Reset()
		}
	}
	for _, t := range tokens {
		if len(t) == 1 {
			run.WriteString(t)
			continue
		}
		flush()
		out = append(out, t)
	}
	flush()
	return strings.Join(out, " ")
}

// ExtractYears estimates years of experience from free text. Values outside
// (0, 40) are discarded as noise; the maximum plausible mention wins.
// Returns 0 when nothing usable is found.
func ExtractYears(text string) float64 {
	var best float64
	for _, re := range yearPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			val, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				continue
			}
			if val <= 0 || val >= 40 {
				continue
			}
			if val > best {
				best = val
			}
		}
	}
	return best
}

// ExtractEducationLevel maps degree keywords to a coarse label.
func ExtractEducationLevel(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "phd") || strings.Contains(lower, "doctorate"):
		return "PhD"
	case strings.Contains(lower, "master") || strings.Contains(lower, "m.tech") || strings.Contains(lower, "mba"):
		return "Masters"
	case strings.Contains(lower, "bachelor") || strings.Contains(lower, "b.tech") || strings.Contains(lower, "btech"):
		return "Bachelors"
	case strings.Contains(lower, "diploma"):
		return "Diploma"
	default:
		return "Any"
	}
}

// ExtractEmail returns the first email address in text, or "".
func ExtractEmail(text string) string {
	return emailRe.FindString(text)
}

// ExtractPhone returns the first phone-looking number with at least 8 digits,
// or "".
func ExtractPhone(text string) string {
	for _, m := range phoneRe.FindAllString(text, -1) {
		digits := 0
		for _, r := range m {
			if r >= '0' && r <= '9' {
				digits++
			}
		}
		if digits >= 8 && digits <= 15 {
			return strings.TrimSpace(m)
		}
	}
	return ""
}

// headerNoise are tokens that look like names in a resume header but aren't.
var headerNoise = map[string]bool{
	"resume": true, "curriculum": true, "vitae": true, "cv": true,
	"summary": true, "profile": true, "skills": true, "experience": true,
	"education": true, "objective": true, "contact": true, "email": true,
	"phone": true, "mobile": true, "address": true, "linkedin": true,
	"github": true, "portfolio": true, "developer": true, "engineer": true,
	"manager": true, "analyst": true, "consultant": true, "intern": true,
}

var filenameNoiseRe = regexp.MustCompile(`(?i)\b(resume|cv|file|copy|new|updated|final|draft|exp|experienced|yrs|years|\d+)\b`)
var bracketRe = regexp.MustCompile(`[\[(].*?[\])]`)

// ExtractName guesses the candidate's name from the document header, falling
// back to a cleaned-up filename. Returns "Unknown Candidate" when both fail.
func ExtractName(text, filename string) string {
	if name := nameFromHeader(text); name != "" {
		return name
	}
	if name := nameFromFilename(filename); name != "" {
		return name
	}
	return "Unknown Candidate"
}

func nameFromHeader(text string) string {
	lines := strings.Split(text, "\n")
	for i := 0; i < len(lines) && i < 5; i++ {
		line := strings.TrimSpace(lines[i])
		words := strings.Fields(line)
		if len(words) < 2 || len(words) > 4 {
			continue
		}
		valid := true
		for _, w := range words {
			if headerNoise[strings.ToLower(w)] || len(w) < 2 || strings.ContainsAny(w, "0123456789@") {
				valid = false
				break
			}
		}
		if valid {
			return titleCase(line)
		}
	}
	return ""
}

func nameFromFilename(filename string) string {
	if filename == "" {
		return ""
	}
	clean := filename
	if idx := strings.LastIndex(clean, "."); idx > 0 {
		clean = clean[:idx]
	}
	clean = bracketRe.ReplaceAllString(clean, "")
	clean = strings.NewReplacer("_", " ", "-", " ", "+", " ", ",", " ").Replace(clean)
	clean = filenameNoiseRe.ReplaceAllString(clean, "")
	clean = spaceRe.ReplaceAllString(clean, " ")
	clean = strings.TrimSpace(clean)
	if len(clean) <= 2 {
		return ""
	}
	return titleCase(clean)
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// Truncate shortens s to at most maxLen bytes, appending an ellipsis marker
// when anything was cut. The cut backs up to a rune boundary so the result
// stays valid UTF-8.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// SanitizeUTF8 replaces invalid byte sequences so the text can safely cross
// JSON and API boundaries.
func SanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "�")
}

var jsonFenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// ExtractJSONObject pulls the first JSON object out of model output. It
// handles fenced code blocks and prose-wrapped objects; the returned slice
// is the raw object text, not yet validated.
func ExtractJSONObject(s string) (string, bool) {
	if m := jsonFenceRe.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	start := strings.Index(s, "{")
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
