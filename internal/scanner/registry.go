package scanner

import (
	"fmt"

	"github.com/aisafe-dev/aisafegate/internal/domain/scan"
)

// Settings carries the scanner-specific knobs from configuration.
// Fields not used by a given scanner are ignored by its constructor.
type Settings struct {
	// Entities restricts the PII scanner to specific entity types.
	Entities []string
	// BannedTopics lists topics the topic_ban scanner rejects.
	BannedTopics []string
	// MinRelevance is the minimum keyword overlap the relevance scanner
	// accepts. Zero selects the default of 0.5.
	MinRelevance float64
}

type registration struct {
	id     string
	input  bool
	output bool
	tier   scan.Tier
	build  func(Settings) scan.Scanner
}

// builtins is the authoritative scanner catalog. Slice order defines
// the deterministic execution order within a tier.
var builtins = []registration{
	{
		id: "pii", input: true, output: true, tier: scan.TierFast,
		build: func(st Settings) scan.Scanner { return NewPIIScanner(st.Entities) },
	},
	{
		id: "prompt_injection", input: true, tier: scan.TierFast,
		build: func(Settings) scan.Scanner { return NewPromptInjectionScanner() },
	},
	{
		id: "jailbreak", input: true, tier: scan.TierFast,
		build: func(Settings) scan.Scanner { return NewJailbreakScanner() },
	},
	{
		id: "topic_ban", input: true, tier: scan.TierFast,
		build: func(st Settings) scan.Scanner { return NewTopicBanScanner(st.BannedTopics) },
	},
	{
		id: "toxicity", output: true, tier: scan.TierFast,
		build: func(Settings) scan.Scanner { return NewToxicityScanner() },
	},
	{
		id: "malicious_url", output: true, tier: scan.TierFast,
		build: func(Settings) scan.Scanner { return NewMaliciousURLScanner() },
	},
	{
		id: "relevance", output: true, tier: scan.TierMedium,
		build: func(st Settings) scan.Scanner {
			min := st.MinRelevance
			if min == 0 {
				min = 0.5
			}
			return NewRelevanceScanner(min)
		},
	},
}

// IDs returns all built-in scanner ids in catalog order.
func IDs() []string {
	ids := make([]string, len(builtins))
	for i, r := range builtins {
		ids[i] = r.id
	}
	return ids
}

// Known reports whether id names a built-in scanner.
func Known(id string) bool {
	return lookup(id) != nil
}

// DefaultTier returns the catalog tier for id, or TierFast for
// unknown ids.
func DefaultTier(id string) scan.Tier {
	if r := lookup(id); r != nil {
		return r.tier
	}
	return scan.TierFast
}

// AppliesTo reports whether the scanner runs for the given direction.
func AppliesTo(id string, dir scan.Direction) bool {
	r := lookup(id)
	if r == nil {
		return false
	}
	if dir == scan.DirectionInput {
		return r.input
	}
	return r.output
}

// Build constructs the named scanner with the given settings.
func Build(id string, st Settings) (scan.Scanner, error) {
	r := lookup(id)
	if r == nil {
		return nil, fmt.Errorf("unknown scanner: %q", id)
	}
	return r.build(st), nil
}

func lookup(id string) *registration {
	for i := range builtins {
		if builtins[i].id == id {
			return &builtins[i]
		}
	}
	return nil
}
