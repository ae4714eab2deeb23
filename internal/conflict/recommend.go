package conflict

// Alternative is a non-default strategy with its tradeoffs, for caller-side
// UI decisions.
type Alternative struct {
	Strategy Strategy `json:"strategy"`
	Pros     string   `json:"pros"`
	Cons     string   `json:"cons"`
}

// Recommendation maps a conflict to a default resolution strategy with a
// confidence score and ranked alternatives.
type Recommendation struct {
	Strategy     Strategy      `json:"strategy"`
	Confidence   float64       `json:"confidence"`
	Reason       string        `json:"reason"`
	Alternatives []Alternative `json:"alternatives,omitempty"`
}

// Recommend returns the default resolution for a conflict pattern and
// severity.
func Recommend(p Pattern, sev Severity) Recommendation {
	switch p {
	case PatternDelete:
		return Recommendation{
			Strategy:   StrategyCurrent,
			Confidence: 0.9,
			Reason:     "the entity is gone; recreating it from a stale edit is rarely intended",
			Alternatives: []Alternative{
				{Strategy: StrategyManual, Pros: "lets the caller recreate deliberately", Cons: "requires re-entering all values"},
			},
		}
	case PatternSchedule:
		return Recommendation{
			Strategy:   StrategyIncoming,
			Confidence: 0.7,
			Reason:     "schedule proposals usually reflect the newest planning intent",
			Alternatives: []Alternative{
				{Strategy: StrategyCurrent, Pros: "keeps the published schedule stable", Cons: "discards the proposed fix"},
				{Strategy: StrategyManual, Pros: "full control over dates", Cons: "slowest path"},
			},
		}
	case PatternUpdate:
		if sev == SeverityWarning {
			return Recommendation{
				Strategy:   StrategyIncoming,
				Confidence: 0.8,
				Reason:     "versions diverged but no watched field actually differs; retrying is safe",
				Alternatives: []Alternative{
					{Strategy: StrategyCurrent, Pros: "no write at all", Cons: "the caller's edit is lost"},
				},
			}
		}
		return Recommendation{
			Strategy:   StrategyMerge,
			Confidence: 0.6,
			Reason:     "both sides changed real values; field-level merging preserves the most work",
			Alternatives: []Alternative{
				{Strategy: StrategyIncoming, Pros: "simple, favors the editor", Cons: "overwrites concurrent edits"},
				{Strategy: StrategyCurrent, Pros: "safe, nothing overwritten", Cons: "the caller's edit is lost"},
				{Strategy: StrategyManual, Pros: "human judgement", Cons: "requires review"},
			},
		}
	case PatternDependency:
		return Recommendation{
			Strategy:   StrategyManual,
			Confidence: 0.6,
			Reason:     "dependency violations need a human to pick which edge or date is wrong",
			Alternatives: []Alternative{
				{Strategy: StrategyCurrent, Pros: "keeps the graph unchanged", Cons: "the violation persists"},
			},
		}
	case PatternResource:
		return Recommendation{
			Strategy:   StrategyManual,
			Confidence: 0.5,
			Reason:     "over-allocation usually means reassigning or re-leveling, not picking a side",
			Alternatives: []Alternative{
				{Strategy: StrategyIncoming, Pros: "accepts the proposed assignment", Cons: "leaves the overlap in place"},
			},
		}
	}
	return Recommendation{
		Strategy:   StrategyManual,
		Confidence: 0.3,
		Reason:     "unrecognized conflict pattern",
	}
}
