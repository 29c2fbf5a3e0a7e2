package entities

import "time"

// StartResult is returned when a listener starts
type StartResult struct {
	AccountID       int64     `json:"account_id"`
	ListeningGroups int       `json:"listening_groups"`
	Chats           []int64   `json:"chats"`
	SubscriptionID  string    `json:"subscription_id"`
	StartedAt       time.Time `json:"started_at"`
}

// FinalStats are the counters a stopped listener leaves behind
type FinalStats struct {
	AccountID         int64     `json:"account_id"`
	ListeningGroups   int       `json:"listening_groups"`
	MessagesProcessed int64     `json:"messages_processed"`
	NewSpeakers       int64     `json:"new_speakers"`
	NewEvents         int64     `json:"new_events"`
	Dropped           int64     `json:"dropped"`
	StartedAt         time.Time `json:"started_at"`
	StoppedAt         time.Time `json:"stopped_at"`
	DurationSeconds   float64   `json:"duration_seconds"`
}

// Status describes a listener, live or stopped
type Status struct {
	AccountID         int64       `json:"account_id"`
	Active            bool        `json:"active"`
	Connected         bool        `json:"connected"`
	Reconnects        int         `json:"reconnects"`
	Error             string      `json:"error,omitempty"`
	ListeningGroups   int         `json:"listening_groups"`
	Chats             []int64     `json:"chats,omitempty"`
	SubscriptionID    string      `json:"subscription_id,omitempty"`
	MessagesProcessed int64       `json:"messages_processed"`
	NewSpeakers       int64       `json:"new_speakers"`
	NewEvents         int64       `json:"new_events"`
	Dropped           int64       `json:"dropped"`
	QueueDepth        int         `json:"queue_depth"`
	StartedAt         *time.Time  `json:"started_at,omitempty"`
	LastRun           *FinalStats `json:"last_run,omitempty"`
}
