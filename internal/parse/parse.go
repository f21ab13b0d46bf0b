// Package parse extracts structured posting fields from free-form text.
package parse

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	numberPattern = regexp.MustCompile(`\d+`)
	tokenPattern  = regexp.MustCompile(`[A-Za-z0-9\+#\.]+`)

	salaryIndicators = []string{
		"$", "salary", "per hour", "hourly", "per year", "annually", "annual",
		"/hr", "/hour", "/year", "hour", "yr", "year",
	}

	// Title/company separators, checked in order.
	titleSeparators = []string{" at ", " @ ", " | ", " - ", " — ", " – "}
)

// SalaryRange extracts a salary band from raw text. It returns nil bounds
// when the text carries no salary indicator, and the trimmed raw text as
// salary_text whenever an indicator is present.
func SalaryRange(raw string) (min, max *int, text string) {
	if raw == "" {
		return nil, nil, ""
	}
	lowered := strings.ToLower(raw)
	indicated := false
	for _, ind := range salaryIndicators {
		if strings.Contains(lowered, ind) {
			indicated = true
			break
		}
	}
	if !indicated {
		return nil, nil, ""
	}

	cleaned := strings.ReplaceAll(raw, ",", "")
	matches := numberPattern.FindAllString(cleaned, -1)
	if len(matches) == 0 {
		return nil, nil, strings.TrimSpace(raw)
	}

	lo, hi := 0, 0
	for i, m := range matches {
		n, err := strconv.Atoi(m)
		if err != nil {
			continue
		}
		if i == 0 {
			lo, hi = n, n
			continue
		}
		if n < lo {
			lo = n
		}
		if n > hi {
			hi = n
		}
	}
	return &lo, &hi, strings.TrimSpace(raw)
}

// TitleCompany splits "Title at Company" style headlines. When no separator
// matches, the whole text is the title and company is empty.
func TitleCompany(text string) (title, company string) {
	text = strings.TrimSpace(text)
	for _, sep := range titleSeparators {
		if !strings.Contains(text, sep) {
			continue
		}
		parts := make([]string, 0, 2)
		for _, p := range strings.Split(text, sep) {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
		if len(parts) >= 2 {
			return parts[0], parts[1]
		}
	}
	return text, ""
}

// tokenize splits text into word-ish tokens, keeping tech spellings like
// "c++", "c#" and "node.js" intact.
func tokenize(text string) []string {
	return tokenPattern.FindAllString(text, -1)
}

// matchLabels collects the labels whose keyword appears as a whole word.
func matchLabels(text string, keywords map[string]string) []string {
	lowered := strings.ToLower(text)
	seen := make(map[string]struct{})
	for key, label := range keywords {
		pattern := regexp.MustCompile(`\b` + regexp.QuoteMeta(key) + `\b`)
		if pattern.MatchString(lowered) {
			seen[label] = struct{}{}
		}
	}
	labels := make([]string, 0, len(seen))
	for label := range seen {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// Skills returns the skill labels detected in the given text.
func Skills(text string) []string {
	return matchLabels(text, skillKeywords)
}

// Innovations returns the innovation labels detected in the given text.
func Innovations(text string) []string {
	return matchLabels(text, innovationKeywords)
}

// RareTags returns the rarity labels detected in the given text.
func RareTags(text string) []string {
	return matchLabels(text, rareKeywords)
}
