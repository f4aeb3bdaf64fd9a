package eval

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/danielpatrickdp/adaptive-eval/internal/gate"
)

// #region label-rules
// Labels are matched on lower-cased substrings, not the exact template text,
// because judge phrasing drifts between runs and models.
type dimensionRule struct {
	dim  Dimension
	keys []string
}

type detectionRule struct {
	kind DetectionKind
	keys []string
}

var dimensionRules = []dimensionRule{
	{OverallRealism, []string{"realism"}},
	{VoiceAuthenticity, []string{"authenticity", "voice"}},
	{TonalConsistency, []string{"tonal", "tone"}},
	{TechnicalAccessibility, []string{"accessib"}},
	{NaturalImperfection, []string{"imperfection"}},
	{ConversationalFlow, []string{"conversational flow", "flow"}},
}

var detectionRules = []detectionRule{
	{TechnicalJargonIssues, []string{"jargon"}},
	{AITendencies, []string{"ai tendenc", "ai-tendenc", "ai pattern"}},
	{TheatricalPhrases, []string{"theatrical"}},
	{FormulaicStructures, []string{"formulaic"}},
}

var (
	passKeys      = []string{"pass/fail", "pass or fail", "pass-fail", "verdict"}
	narrativeKeys = []string{"reasoning", "rationale", "narrative"}
	emptyMarkers  = map[string]bool{
		"": true, "none": true, "n/a": true, "na": true, "-": true, "nil": true,
		"none detected": true, "none found": true, "no issues": true, "none identified": true,
	}
)

// maxLabelLen bounds what counts as a label; longer text before a colon is prose.
const maxLabelLen = 48

var numberRe = regexp.MustCompile(`^-?\d+(?:\.\d+)?`)

// #endregion label-rules

// #region parse
type lineMode int

const (
	modeNone lineMode = iota
	modeNarrative
	modeBullets
)

type labelKind int

const (
	labelNone labelKind = iota
	labelPass
	labelDetection
	labelNarrative
	labelDimension
)

// Parse turns judge free text into an EvaluationResult. Every rule is
// independent; a label that never appears leaves its field unset and is
// listed in the report instead of failing.
func Parse(text string, cfg ParseConfig) (EvaluationResult, ParseReport) {
	fields := ResultFields{
		Scores:     make(map[Dimension]float64),
		Detections: make(map[DetectionKind][]string),
		Raw:        text,
	}
	var report ParseReport

	seenDetections := make(map[DetectionKind]bool)
	seenNarrative := false
	var narrative []string
	var explicitPass *bool
	unparsed := make(map[string]bool)

	mode := modeNone
	var bulletKind DetectionKind

	for _, rawLine := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		line := strings.TrimSpace(rawLine)
		body, isBullet := stripBullet(line)
		label, value, hasLabel := splitLabel(body)

		kind := labelNone
		if hasLabel {
			kind = classify(label)
		}

		switch kind {
		case labelPass:
			if v, ok := parseVerdict(value); ok {
				explicitPass = &v
			} else {
				unparsed["pass_fail"] = true
			}
			mode = modeNone

		case labelDetection:
			det, _ := matchDetection(label)
			seenDetections[det] = true
			fields.Detections[det] = append(fields.Detections[det], splitItems(value)...)
			mode = modeNone
			if strings.TrimSpace(value) == "" {
				mode = modeBullets
				bulletKind = det
			}

		case labelNarrative:
			seenNarrative = true
			if v := strings.TrimSpace(value); v != "" {
				narrative = append(narrative, v)
			}
			mode = modeNarrative

		case labelDimension:
			dim, _ := matchDimension(label)
			v, ok := parseScore(value)
			if !ok && mode == modeNarrative {
				// prose that happens to mention a dimension
				narrative = append(narrative, line)
				continue
			}
			if !ok {
				if _, have := fields.Scores[dim]; !have {
					unparsed[string(dim)] = true
				}
				mode = modeNone
				continue
			}
			if _, dup := fields.Scores[dim]; dup && mode == modeNarrative {
				narrative = append(narrative, line)
				continue
			}
			if _, dup := fields.Scores[dim]; !dup {
				fields.Scores[dim] = v
			}
			delete(unparsed, string(dim))
			mode = modeNone

		default:
			switch {
			case mode == modeBullets && isBullet:
				fields.Detections[bulletKind] = append(fields.Detections[bulletKind], splitItems(body)...)
			case mode == modeBullets && line == "":
			case mode == modeNarrative:
				narrative = append(narrative, line)
			default:
				mode = modeNone
			}
		}
	}

	fields.Narrative = strings.TrimSpace(strings.Join(narrative, "\n"))

	for _, d := range Dimensions {
		if _, ok := fields.Scores[d]; !ok && !unparsed[string(d)] {
			report.Missing = append(report.Missing, string(d))
		}
	}
	for _, k := range DetectionKinds {
		if !seenDetections[k] {
			report.Missing = append(report.Missing, string(k))
		}
	}
	if !seenNarrative {
		report.Missing = append(report.Missing, "reasoning")
	}
	if explicitPass == nil && !unparsed["pass_fail"] {
		report.Missing = append(report.Missing, "pass_fail")
	}
	report.Unparsed = sortedKeys(unparsed)

	if _, ok := fields.Scores[OverallRealism]; !ok && cfg.MissingOverallDefault != nil {
		fields.Scores[OverallRealism] = *cfg.MissingOverallDefault
		report.Defaulted = true
	}

	if explicitPass != nil {
		fields.Passed = *explicitPass
		report.PassSource = "label"
	} else {
		overall, ok := fields.Scores[OverallRealism]
		fields.Passed = gate.NewGate(gate.GateConfig{PassThreshold: cfg.PassThreshold}).Decide(overall, ok).Passed
		report.PassSource = "threshold"
	}

	return NewResult(fields), report
}

// #endregion parse

// #region helpers
// stripBullet removes list markers and heading hashes from the start of a line.
func stripBullet(line string) (string, bool) {
	s := line
	bullet := false
	for {
		switch {
		case strings.HasPrefix(s, "- "), strings.HasPrefix(s, "• "), strings.HasPrefix(s, "+ "):
			s = strings.TrimSpace(s[strings.Index(s, " ")+1:])
			bullet = true
			continue
		case strings.HasPrefix(s, "* "):
			s = strings.TrimSpace(s[2:])
			bullet = true
			continue
		case strings.HasPrefix(s, "#"):
			s = strings.TrimSpace(strings.TrimLeft(s, "#"))
			continue
		}
		if i := strings.Index(s, ". "); i > 0 && i <= 3 && isDigits(s[:i]) {
			s = strings.TrimSpace(s[i+2:])
			bullet = true
			continue
		}
		return s, bullet
	}
}

// splitLabel splits "**Label (0-10)**: value" into a normalised lower-case
// label and the raw value.
func splitLabel(s string) (string, string, bool) {
	i := strings.Index(s, ":")
	if i <= 0 {
		return "", "", false
	}
	label := strings.ToLower(strings.Trim(s[:i], "*_` \t"))
	if label == "" || len(label) > maxLabelLen {
		return "", "", false
	}
	value := strings.Trim(s[i+1:], "*_ \t")
	return label, value, true
}

// classify applies the label rules in priority order: verdict, detection
// lists, narrative, then dimensions.
func classify(label string) labelKind {
	switch {
	case containsAny(label, passKeys):
		return labelPass
	case matchesDetection(label):
		return labelDetection
	case containsAny(label, narrativeKeys):
		return labelNarrative
	case matchesDimension(label):
		return labelDimension
	}
	return labelNone
}

func matchesDetection(label string) bool {
	_, ok := matchDetection(label)
	return ok
}

func matchesDimension(label string) bool {
	_, ok := matchDimension(label)
	return ok
}

func matchDimension(label string) (Dimension, bool) {
	for _, r := range dimensionRules {
		if containsAny(label, r.keys) {
			return r.dim, true
		}
	}
	return "", false
}

func matchDetection(label string) (DetectionKind, bool) {
	for _, r := range detectionRules {
		if containsAny(label, r.keys) {
			return r.kind, true
		}
	}
	return "", false
}

// parseScore reads the leading number of a value, tolerating a trailing "/10".
// Out-of-range numbers are returned as-is.
func parseScore(value string) (float64, bool) {
	m := numberRe.FindString(strings.TrimSpace(value))
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseVerdict reads the first "pass" or "fail" word in the value. A negator
// up to three words before it flips "pass" to a fail; a negated "fail" is
// ambiguous and reported as unparsed.
func parseVerdict(value string) (bool, bool) {
	words := strings.FieldsFunc(strings.ToLower(strings.ReplaceAll(value, "’", "'")), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
	for i, w := range words {
		switch {
		case strings.HasPrefix(w, "pass"):
			return !negated(words, i), true
		case strings.HasPrefix(w, "fail"):
			if negated(words, i) {
				return false, false
			}
			return false, true
		}
	}
	return false, false
}

var verdictNegators = map[string]bool{
	"not": true, "no": true, "never": true, "cannot": true,
	"doesn't": true, "doesnt": true, "didn't": true, "didnt": true,
	"isn't": true, "isnt": true, "won't": true, "can't": true,
}

func negated(words []string, i int) bool {
	for j := max(0, i-3); j < i; j++ {
		if verdictNegators[words[j]] {
			return true
		}
	}
	return false
}

// splitItems splits a comma list, ignoring commas inside parentheses.
func splitItems(value string) []string {
	if emptyMarkers[normalizeMarker(value)] {
		return nil
	}
	var items []string
	depth := 0
	start := 0
	for i, r := range value {
		switch r {
		case '(', '[':
			depth++
		case ')', ']':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				items = appendItem(items, value[start:i])
				start = i + 1
			}
		}
	}
	return appendItem(items, value[start:])
}

func appendItem(items []string, raw string) []string {
	item := strings.Trim(raw, " \t\"'`*“”‘’")
	if emptyMarkers[normalizeMarker(item)] {
		return items
	}
	return append(items, item)
}

func normalizeMarker(s string) string {
	return strings.TrimRight(strings.ToLower(strings.Trim(s, " \t\"'`*")), ".")
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// #endregion helpers
