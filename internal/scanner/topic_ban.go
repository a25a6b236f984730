package scanner

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aisafe-dev/aisafegate/internal/domain/scan"
)

// Built-in topic keyword maps. Custom topics can be added per instance.
var topicKeywords = map[string][]string{
	"violence": {
		"kill", "murder", "attack", "weapon", "gun", "bomb", "assault",
		"shoot", "stab", "hurt", "harm", "violent", "torture",
	},
	"illegal_activity": {
		"hack", "steal", "fraud", "counterfeit", "launder", "smuggle",
		"traffic", "bribe", "forge", "pirate", "extort",
	},
	"adult_content": {
		"explicit", "nsfw", "pornograph", "sexual",
	},
	"drugs": {
		"cocaine", "heroin", "meth", "fentanyl", "mdma", "lsd",
		"synthesize drugs", "make drugs", "cook meth",
	},
	"gambling": {
		"gamble", "betting", "casino", "wager", "slot machine",
	},
}

// TopicBanScanner restricts prompts by detecting banned topics through
// keyword matching. Emits at most one finding per banned topic.
type TopicBanScanner struct {
	banned   []string
	patterns map[string][]*regexp.Regexp
}

// NewTopicBanScanner creates a scanner for the given banned topics.
// Unknown topic names are ignored. Keyword patterns are compiled once.
func NewTopicBanScanner(banned []string) *TopicBanScanner {
	s := &TopicBanScanner{
		banned:   banned,
		patterns: make(map[string][]*regexp.Regexp),
	}
	for _, topic := range banned {
		for _, kw := range topicKeywords[topic] {
			s.patterns[topic] = append(s.patterns[topic],
				regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(kw)+`\b`))
		}
	}
	return s
}

// AddTopic registers a custom topic with its keyword list. Must be
// called before the scanner is handed to a pipeline.
func (s *TopicBanScanner) AddTopic(topic string, keywords []string) {
	s.banned = append(s.banned, topic)
	for _, kw := range keywords {
		s.patterns[topic] = append(s.patterns[topic],
			regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(kw)+`\b`))
	}
}

func (s *TopicBanScanner) Name() string { return "topic_ban" }

func (s *TopicBanScanner) Scan(_ context.Context, text string, _ scan.Context) (scan.ScanResult, error) {
	var findings []scan.Finding
	for _, topic := range s.banned {
		for _, p := range s.patterns[topic] {
			if loc := p.FindStringIndex(text); loc != nil {
				findings = append(findings, scan.Finding{
					Scanner:  s.Name(),
					Category: "topic_ban",
					Score:    scoreMedium,
					Start:    loc[0],
					End:      loc[1],
					Message:  fmt.Sprintf("Banned topic detected: %s", topic),
				})
				break // one finding per topic
			}
		}
	}
	return newResult(s.Name(), text, findings), nil
}
