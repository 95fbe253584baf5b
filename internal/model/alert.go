package model

import "time"

// Severity represents the severity level of an alert
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityWarning  Severity = "WARNING"
	SeverityInfo     Severity = "INFO"
)

// Severities lists every severity from most to least severe
var Severities = []Severity{SeverityCritical, SeverityWarning, SeverityInfo}

// Rank orders severities, lower is more severe
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityWarning:
		return 1
	case SeverityInfo:
		return 2
	default:
		return 3
	}
}

// AlertRecord is one classified alert in a feed
type AlertRecord struct {
	ID            string            `json:"id"`
	Severity      Severity          `json:"severity"`
	Kind          EntityKind        `json:"kind"`
	Rule          string            `json:"rule"`
	Title         string            `json:"title"`
	Detail        string            `json:"detail"`
	DaysRemaining *int              `json:"days_remaining,omitempty"`
	EntityIDs     []string          `json:"entity_ids"`
	EntityRef     map[string]string `json:"entity_ref,omitempty"`
}

// AlertFeed is the result of one classification pass
type AlertFeed struct {
	Items           []AlertRecord    `json:"items"`
	TotalCount      int              `json:"total_count"`
	CountBySeverity map[Severity]int `json:"count_by_severity"`
}

// NewAlertFeed builds a feed from items and fills in the counters
func NewAlertFeed(items []AlertRecord) *AlertFeed {
	if items == nil {
		items = []AlertRecord{}
	}
	counts := make(map[Severity]int, len(Severities))
	for _, s := range Severities {
		counts[s] = 0
	}
	for _, item := range items {
		counts[item.Severity]++
	}
	return &AlertFeed{
		Items:           items,
		TotalCount:      len(items),
		CountBySeverity: counts,
	}
}

// FeedRun records one evaluation of the feed
type FeedRun struct {
	ID          string        `json:"id"`
	GeneratedAt time.Time     `json:"generated_at"`
	Reference   time.Time     `json:"reference"`
	EntityCount int           `json:"entity_count"`
	Failures    []string      `json:"failures,omitempty"`
	Duration    time.Duration `json:"duration"`
	Feed        *AlertFeed    `json:"feed"`
}
