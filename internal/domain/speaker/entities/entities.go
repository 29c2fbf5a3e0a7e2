package entities

import "time"

// CleanupReport summarizes a maintenance pass
type CleanupReport struct {
	RemovedSpeakers int64 `json:"removed_speakers"`
	RemovedEvents   int64 `json:"removed_events"`
	FixedHandles    int64 `json:"fixed_handles"`
	RemovedOrphans  int64 `json:"removed_orphans"`
	RemainingTotal  int64 `json:"remaining_speakers"`
}

// RecentSpeaker is a row of the stats "recent" list
type RecentSpeaker struct {
	Username  string    `json:"username"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AccountStat is per-account collection volume
type AccountStat struct {
	AccountID    int64  `json:"account_id"`
	AccountName  string `json:"account_name"`
	SpeakerCount int64  `json:"user_count"`
	EventCount   int64  `json:"speak_count"`
}

// Stats is the collection overview
type Stats struct {
	TotalSpeakers        int64           `json:"total_users"`
	SpeakersWithUsername int64           `json:"users_with_username"`
	TotalEvents          int64           `json:"total_speaks"`
	Recent               []RecentSpeaker `json:"recent_users"`
	Accounts             []AccountStat   `json:"account_stats"`
}

// UsernameFilter narrows a window export
type UsernameFilter struct {
	From      time.Time
	To        time.Time
	AccountID *int64
	ChatID    *int64
}
