package parser

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/aluiziolira/go-scrape-jarvis/config"
)

// PaginationSignals are the independent hints that a listing has another page.
type PaginationSignals struct {
	NextControl bool
	ItemRange   bool
	FullPage    bool
	RelNext     bool
}

// HasNext reports whether any signal is set.
func (s PaginationSignals) HasNext() bool {
	return s.NextControl || s.ItemRange || s.FullPage || s.RelNext
}

// DetectPagination evaluates the has-next signals of a listing page.
// itemCount is the number of products found on the page.
func DetectPagination(page *Page, profile *config.Profile, itemCount int) PaginationSignals {
	var signals PaginationSignals
	rules := profile.Pagination

	for _, expr := range rules.NextSelectors {
		if expr != "" && page.Select(expr).Length() > 0 {
			signals.NextControl = true
			break
		}
	}

	for _, expr := range rules.RangeSelectors {
		if expr == "" {
			continue
		}
		if text := firstText(page.Select(expr)); text != "" && rangeHasMore(text, profile) {
			signals.ItemRange = true
			break
		}
	}

	if rules.FullPageThreshold > 0 && itemCount >= rules.FullPageThreshold {
		for _, expr := range rules.ContainerSelectors {
			if expr != "" && page.Select(expr).Length() > 0 {
				signals.FullPage = true
				break
			}
		}
	}

	if rules.RelNextSelector != "" && page.Select(rules.RelNextSelector).Length() > 0 {
		signals.RelNext = true
	}

	return signals
}

// rangeHasMore interprets texts such as "1 - 96 of 250". When a total is
// present the range must end before it; otherwise any numeric range counts.
func rangeHasMore(text string, profile *config.Profile) bool {
	re := profile.RangePattern()
	if re == nil {
		return strings.IndexFunc(text, unicode.IsDigit) >= 0
	}
	match := re.FindStringSubmatch(text)
	if match == nil {
		return false
	}
	if len(match) < 4 || match[3] == "" {
		return true
	}
	end, errEnd := parseCount(match[2])
	total, errTotal := parseCount(match[3])
	if errEnd != nil || errTotal != nil {
		return true
	}
	return end < total
}

func parseCount(s string) (int, error) {
	return strconv.Atoi(strings.ReplaceAll(s, ",", ""))
}
