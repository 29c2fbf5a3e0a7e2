package domain

import (
	"fmt"
	"strings"
	"time"
)

// channelIDOffset is the marked-id offset for channels and supergroups
const channelIDOffset int64 = 1_000_000_000_000

// ChannelMarkedID encodes a raw channel id into its marked (negative) form
func ChannelMarkedID(rawID int64) int64 {
	return -channelIDOffset - rawID
}

// SplitMarkedID decodes a marked peer id into its kind and raw id
func SplitMarkedID(markedID int64) (ChatKind, int64) {
	switch {
	case markedID > 0:
		return ChatKindUser, markedID
	case markedID <= -channelIDOffset:
		return ChatKindChannel, -markedID - channelIDOffset
	default:
		return ChatKindBasic, -markedID
	}
}

// Account is a managed platform account
type Account struct {
	ID         int64
	Name       string
	Phone      string
	Credential []byte
	Enabled    bool
}

// ChatKind distinguishes peers by their id encoding
type ChatKind int

const (
	ChatKindUser ChatKind = iota
	ChatKindBasic
	ChatKindChannel
)

func (k ChatKind) String() string {
	switch k {
	case ChatKindBasic:
		return "chat"
	case ChatKindChannel:
		return "channel"
	default:
		return "user"
	}
}

// ChatHandle is a resolved, live reference to a group
type ChatHandle struct {
	RawID      int64
	MarkedID   int64
	Kind       ChatKind
	AccessHash int64
	Title      string
}

// Label returns the title, or a placeholder derived from the stored id
func (c *ChatHandle) Label(storedID int64) string {
	if c != nil && c.Title != "" {
		return c.Title
	}
	return fmt.Sprintf("Group %d", storedID)
}

// SenderKind classifies who authored a message
type SenderKind int

const (
	SenderUser SenderKind = iota
	SenderChat
	SenderChannel
)

// Sender is the resolved author of a message
type Sender struct {
	ID        int64
	Kind      SenderKind
	Username  string
	FirstName string
	LastName  string
	Bot       bool
}

// IsRegularUser reports whether the sender is a human, non-bot account
func (s *Sender) IsRegularUser() bool {
	return s != nil && s.Kind == SenderUser && !s.Bot
}

// Message is a single group message as seen by the collectors.
// Sender is nil when the author could not be resolved.
type Message struct {
	ID     int
	ChatID int64
	Date   time.Time
	Sender *Sender
}

// HistoryCursor marks a position in a group's message stream
type HistoryCursor struct {
	Since   time.Time
	AfterID int
}

// HistoryPage is one batch of messages in ascending id order
type HistoryPage struct {
	Messages []Message
	Next     HistoryCursor
	Done     bool
}

// Speaker is a platform user observed speaking
type Speaker struct {
	TgUserID  int64
	Username  string
	FirstName string
	LastName  string
	IsBot     bool
}

// SpeakEvent is one observed message by a speaker, scoped to the observing account
type SpeakEvent struct {
	AccountID   int64
	ChatID      int64
	TgUserID    int64
	MessageID   int
	MessageDate time.Time
}

// Observation pairs a speaker with the event that surfaced them
type Observation struct {
	Speaker Speaker
	Event   SpeakEvent
}

// NormalizeHandle makes sure a non-empty handle starts with '@'
func NormalizeHandle(username string) string {
	if username == "" || strings.HasPrefix(username, "@") {
		return username
	}
	return "@" + username
}

// ProgressStatus is the crawl state of an account
type ProgressStatus string

const (
	ProgressPreparing  ProgressStatus = "preparing"
	ProgressCollecting ProgressStatus = "collecting"
	ProgressCompleted  ProgressStatus = "completed"
	ProgressError      ProgressStatus = "error"
)

const (
	LabelPreparing = "Preparing..."
	LabelCompleted = "Collection completed"
)

// ProgressRecord is a snapshot of an account's crawl progress
type ProgressRecord struct {
	AccountID  int64          `json:"account_id"`
	Current    int            `json:"current"`
	Total      int            `json:"total"`
	Percentage int            `json:"percentage"`
	Label      string         `json:"group_name"`
	Status     ProgressStatus `json:"status"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Percentage returns floor(current/total*100), or 0 when total is zero
func Percentage(current, total int) int {
	if total <= 0 {
		return 0
	}
	return current * 100 / total
}

// DefaultProgress is reported for accounts with no known progress
func DefaultProgress(accountID int64) ProgressRecord {
	return ProgressRecord{
		AccountID: accountID,
		Label:     LabelPreparing,
		Status:    ProgressPreparing,
	}
}
