package domain

import "time"

// HistoryRecord is a persisted classification. Records are never updated.
type HistoryRecord struct {
	ID                int64     `json:"id"`
	Classification    Category  `json:"classification"`
	ConfidenceScore   float64   `json:"confidence_score"`
	KeyTopic          string    `json:"key_topic"`
	Sentiment         Sentiment `json:"sentiment"`
	SuggestedResponse string    `json:"suggested_response"`
	EmailContent      string    `json:"email_content"`
	CreatedAt         time.Time `json:"created_at"`
}

// HistoryEntry is the list view of a record.
type HistoryEntry struct {
	ID                int64     `json:"id"`
	Classification    Category  `json:"classification"`
	Sentiment         Sentiment `json:"sentiment"`
	CreatedAt         time.Time `json:"created_at"`
	EmailSnippet      string    `json:"email_snippet"`
	EmailContent      string    `json:"email_content"`
	SuggestedResponse string    `json:"suggested_response"`
}

// DailyCounts maps a calendar date (YYYY-MM-DD) to label counts.
type DailyCounts map[string]map[string]int

// Increment adds one to label on date.
func (d DailyCounts) Increment(date, label string) {
	day, ok := d[date]
	if !ok {
		day = make(map[string]int)
		d[date] = day
	}
	day[label]++
}

// DashboardData is the payload behind the dashboard charts.
type DashboardData struct {
	AllData                 []*HistoryRecord `json:"all_data"`
	SentimentsOverTime      DailyCounts      `json:"sentiments_over_time"`
	ClassificationsOverTime DailyCounts      `json:"classifications_over_time"`
}
