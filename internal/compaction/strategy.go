package compaction

import "github.com/haasonsaas/aide/pkg/models"

// Strategy names.
const (
	StrategyDropOldest = "drop_oldest"
	StrategySummarize  = "summarize"
	StrategySliding    = "sliding"
)

// SummaryPrefix marks synthetic summary messages produced by compaction.
const SummaryPrefix = "[Conversation summary]"

// Strategy parameterizes a compaction pass. The zero value is not usable;
// construct via DropOldest, Summarize, or Sliding and override fields as
// needed.
type Strategy struct {
	// Name selects the algorithm: drop_oldest, summarize, or sliding.
	Name string
	// CompactionTarget is the fraction of maxTokens to shrink to.
	CompactionTarget float64
	// KeepRatio is the fraction of messages kept verbatim by summarize.
	KeepRatio float64
	// PreserveRecentToolPairs is how many trailing tool-call groups survive
	// any pass. When it exceeds the groups present, all are preserved.
	PreserveRecentToolPairs int
	// PreserveTaskDescription keeps the first user message.
	PreserveTaskDescription bool
	// PinnedRoles lists roles whose messages are never dropped.
	PinnedRoles []models.Role
}

func defaults(name string) Strategy {
	return Strategy{
		Name:                    name,
		CompactionTarget:        0.6,
		KeepRatio:               0.3,
		PreserveRecentToolPairs: 3,
		PreserveTaskDescription: true,
	}
}

// DropOldest returns the default drop_oldest strategy.
func DropOldest() Strategy { return defaults(StrategyDropOldest) }

// Summarize returns the default summarize strategy.
func Summarize() Strategy { return defaults(StrategySummarize) }

// Sliding returns the default sliding strategy.
func Sliding() Strategy { return defaults(StrategySliding) }

// ByName returns the named strategy with defaults, falling back to
// drop_oldest for unknown names.
func ByName(name string) Strategy {
	switch name {
	case StrategySummarize:
		return Summarize()
	case StrategySliding:
		return Sliding()
	default:
		return DropOldest()
	}
}

func (s Strategy) pinned(role models.Role) bool {
	for _, r := range s.PinnedRoles {
		if r == role {
			return true
		}
	}
	return false
}

// needsSummarizer reports whether the strategy requires a summarizer
// callback to run as specified.
func (s Strategy) needsSummarizer() bool {
	return s.Name == StrategySummarize || s.Name == StrategySliding
}
