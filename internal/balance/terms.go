package balance

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// defaultTermDays applies when payment terms are absent or unparseable.
const defaultTermDays = 30

var (
	daysPattern       = regexp.MustCompile(`(\d+)\s*(?:j|jour|jours|day|days)\b`)
	endOfMonthPattern = regexp.MustCompile(`fin\s+de\s+mois(?:\s*\+?\s*(\d+))?`)
	bareNumberPattern = regexp.MustCompile(`^\s*(\d+)\s*$`)
)

// DueDate resolves an invoice's due date from its French payment terms.
// Supported forms: "30 jours", "fin de mois +N", "comptant" and
// "réception" (due immediately). Unrecognised terms fall back to 30
// days rather than failing the report.
func DueDate(issueDate time.Time, terms string) time.Time {
	normalized := strings.ToLower(strings.TrimSpace(terms))
	normalized = stripAccents(normalized)

	if normalized == "" {
		return issueDate.AddDate(0, 0, defaultTermDays)
	}

	if strings.Contains(normalized, "comptant") || strings.Contains(normalized, "reception") || strings.Contains(normalized, "livraison") {
		return issueDate
	}

	if m := endOfMonthPattern.FindStringSubmatch(normalized); m != nil {
		extra := 0
		if m[1] != "" {
			extra, _ = strconv.Atoi(m[1])
		}
		return endOfMonth(issueDate).AddDate(0, 0, extra)
	}

	if m := daysPattern.FindStringSubmatch(normalized); m != nil {
		days, _ := strconv.Atoi(m[1])
		return issueDate.AddDate(0, 0, days)
	}

	if m := bareNumberPattern.FindStringSubmatch(normalized); m != nil {
		days, _ := strconv.Atoi(m[1])
		return issueDate.AddDate(0, 0, days)
	}

	return issueDate.AddDate(0, 0, defaultTermDays)
}

func endOfMonth(t time.Time) time.Time {
	firstOfNext := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).AddDate(0, 1, 0)
	return firstOfNext.AddDate(0, 0, -1)
}

// stripAccents folds the accented characters that occur in French
// payment terms so matching stays byte-simple.
func stripAccents(s string) string {
	replacer := strings.NewReplacer(
		"é", "e", "è", "e", "ê", "e", "ë", "e",
		"à", "a", "â", "a",
		"î", "i", "ï", "i",
		"ô", "o", "û", "u", "ù", "u",
		"ç", "c",
	)
	return replacer.Replace(s)
}

// bucketFor classifies an overdue duration into an aging bucket. Days
// at or below zero (not yet due) still land in the first bucket.
func bucketFor(daysOverdue int) string {
	switch {
	case daysOverdue <= 30:
		return Bucket0To30
	case daysOverdue <= 60:
		return Bucket31To60
	case daysOverdue <= 90:
		return Bucket61To90
	default:
		return BucketOver90
	}
}
