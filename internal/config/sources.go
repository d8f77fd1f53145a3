package config

import (
	"fmt"
	"strings"
	"time"
)

// SourceHint pairs a source label with the tier and category Scout suggests
// when the caller does not pass them explicitly. Tier 1 is a primary source,
// 2 an amplifier, 3 background context.
type SourceHint struct {
	Label    string
	Tier     int
	Category string
}

// sourceTable maps domain substrings to source hints. First match wins;
// ordering matters for the twitter/x pair.
var sourceTable = []struct {
	match string
	hint  SourceHint
}{
	{"arxiv.org", SourceHint{"arXiv", 1, "research"}},
	{"github.com", SourceHint{"GitHub", 1, "lab"}},
	{"huggingface.co", SourceHint{"HuggingFace", 1, "benchmark"}},
	{"paperswithcode.com", SourceHint{"PapersWithCode", 1, "benchmark"}},
	{"openreview.net", SourceHint{"OpenReview", 1, "research"}},
	{"twitter.com", SourceHint{"Twitter/X", 2, "social"}},
	{"//x.com", SourceHint{"Twitter/X", 2, "social"}},
	{"reddit.com", SourceHint{"Reddit", 2, "social"}},
	{"news.ycombinator.com", SourceHint{"HackerNews", 2, "social"}},
	{"youtube.com", SourceHint{"YouTube", 2, "social"}},
	{"youtu.be", SourceHint{"YouTube", 2, "social"}},
	{"medium.com", SourceHint{"Medium", 3, "industry"}},
	{"substack.com", SourceHint{"Substack", 3, "industry"}},
	{"dev.to", SourceHint{"Dev.to", 3, "industry"}},
}

// DetectSource classifies a URL into a source hint. Unknown domains fall
// back to a generic tier-3 "Web" hint.
func DetectSource(url string) SourceHint {
	lower := strings.ToLower(url)
	for _, entry := range sourceTable {
		if strings.Contains(lower, entry.match) {
			return entry.hint
		}
	}
	return SourceHint{Label: "Web", Tier: 3, Category: "other"}
}

// Queries holds the suggested search queries for a session topic.
type Queries struct {
	Viral         string
	Groundbreaker string
}

// BuildQueries renders the viral and groundbreaker GitHub search queries for
// a topic from the configured thresholds, relative to now.
func (f FiltersConfig) BuildQueries(topic string, now time.Time) Queries {
	viralCutoff := now.AddDate(0, 0, -f.ViralWindowDays).Format("2006-01-02")
	gbCutoff := now.AddDate(0, 0, -f.GroundbreakerWindowDays).Format("2006-01-02")

	return Queries{
		Viral: fmt.Sprintf("%s stars:>%d pushed:>%s",
			topic, f.ViralMinStars, viralCutoff),
		Groundbreaker: fmt.Sprintf("%s stars:%d..%d created:>%s",
			topic, f.GroundbreakerMinStars, f.GroundbreakerMaxStars, gbCutoff),
	}
}
