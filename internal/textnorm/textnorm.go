// Package textnorm cleans free text and renders recipe durations and nutrition facts.
package textnorm

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	tagPattern      = regexp.MustCompile(`<[^>]*>`)
	entityPattern   = regexp.MustCompile(`&[a-zA-Z0-9#]+;`)
	spacePattern    = regexp.MustCompile(`\s+`)
	durationPattern = regexp.MustCompile(`PT(?:(\d+)H)?(?:(\d+)M)?`)
)

// CleanText strips markup tags and character entities, collapses whitespace and trims.
// Entities are replaced rather than decoded so the result is stable under repeated cleaning.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	s = tagPattern.ReplaceAllString(s, " ")
	s = entityPattern.ReplaceAllString(s, " ")
	s = spacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// ParseDuration renders an ISO-8601 PT[nH][nM] duration as "1h 30min", "1h" or "30min".
// Input that does not match, or matches with no non-zero component, is returned as is.
func ParseDuration(s string) string {
	if s == "" {
		return ""
	}
	m := durationPattern.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	hours := atoi(m[1])
	minutes := atoi(m[2])

	var parts []string
	if hours > 0 {
		parts = append(parts, strconv.Itoa(hours)+"h")
	}
	if minutes > 0 {
		parts = append(parts, strconv.Itoa(minutes)+"min")
	}
	if len(parts) == 0 {
		return s
	}
	return strings.Join(parts, " ")
}

func atoi(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// Nutrition carries the subset of schema.org NutritionInformation that gets summarized.
type Nutrition struct {
	Calories      string
	Protein       string
	Carbohydrates string
	Fat           string
}

// FormatNutrition joins the present fields as "Calories: X | Protein: Y | Carbs: Z | Fat: W".
func FormatNutrition(n *Nutrition) string {
	if n == nil {
		return ""
	}
	fields := []struct {
		label string
		value string
	}{
		{"Calories", n.Calories},
		{"Protein", n.Protein},
		{"Carbs", n.Carbohydrates},
		{"Fat", n.Fat},
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		v := strings.TrimSpace(f.value)
		if v == "" {
			continue
		}
		parts = append(parts, f.label+": "+v)
	}
	return strings.Join(parts, " | ")
}
