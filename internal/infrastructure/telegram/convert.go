package telegram

import (
	"fmt"
	"sort"
	"time"

	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"github.com/Conte777/tg-userharvest/internal/domain"
)

// mapError turns FLOOD_WAIT rpc errors into *domain.FloodWaitError and leaves
// everything else untouched
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if d, ok := tgerr.AsFloodWait(err); ok {
		return &domain.FloodWaitError{Wait: d}
	}
	return err
}

// chatHandle converts a dialog chat into a group handle. Forbidden chats and
// anything that is not a group or channel yield false.
func chatHandle(chat tg.ChatClass) (*domain.ChatHandle, bool) {
	switch c := chat.(type) {
	case *tg.Chat:
		return &domain.ChatHandle{
			RawID:    c.ID,
			MarkedID: -c.ID,
			Kind:     domain.ChatKindBasic,
			Title:    c.Title,
		}, true
	case *tg.Channel:
		return &domain.ChatHandle{
			RawID:      c.ID,
			MarkedID:   domain.ChannelMarkedID(c.ID),
			Kind:       domain.ChatKindChannel,
			AccessHash: c.AccessHash,
			Title:      c.Title,
		}, true
	default:
		return nil, false
	}
}

// inputPeer builds the request peer for a resolved group
func inputPeer(chat *domain.ChatHandle) tg.InputPeerClass {
	if chat.Kind == domain.ChatKindChannel {
		return &tg.InputPeerChannel{ChannelID: chat.RawID, AccessHash: chat.AccessHash}
	}
	return &tg.InputPeerChat{ChatID: chat.RawID}
}

// markedPeerID returns the marked id of a peer
func markedPeerID(p tg.PeerClass) (int64, bool) {
	switch peer := p.(type) {
	case *tg.PeerUser:
		return peer.UserID, true
	case *tg.PeerChat:
		return -peer.ChatID, true
	case *tg.PeerChannel:
		return domain.ChannelMarkedID(peer.ChannelID), true
	default:
		return 0, false
	}
}

func userIndex(users []tg.UserClass) map[int64]*tg.User {
	idx := make(map[int64]*tg.User, len(users))
	for _, u := range users {
		if user, ok := u.(*tg.User); ok {
			idx[user.ID] = user
		}
	}
	return idx
}

// handleOf returns the primary handle, falling back to the first active
// collectible username
func handleOf(u *tg.User) string {
	if u.Username != "" {
		return u.Username
	}
	for _, name := range u.Usernames {
		if name.Active {
			return name.Username
		}
	}
	return ""
}

// senderOf resolves a message author. A user missing from users is unresolvable.
func senderOf(from tg.PeerClass, users map[int64]*tg.User) *domain.Sender {
	switch p := from.(type) {
	case *tg.PeerUser:
		u, ok := users[p.UserID]
		if !ok {
			return nil
		}
		return &domain.Sender{
			ID:        u.ID,
			Kind:      domain.SenderUser,
			Username:  handleOf(u),
			FirstName: u.FirstName,
			LastName:  u.LastName,
			Bot:       u.Bot,
		}
	case *tg.PeerChat:
		return &domain.Sender{ID: -p.ChatID, Kind: domain.SenderChat}
	case *tg.PeerChannel:
		return &domain.Sender{ID: domain.ChannelMarkedID(p.ChannelID), Kind: domain.SenderChannel}
	default:
		return nil
	}
}

// convertMessage maps a platform message into the collectors' view. Service
// messages and empty slots are dropped.
func convertMessage(mc tg.MessageClass, users map[int64]*tg.User) (domain.Message, bool) {
	m, ok := mc.(*tg.Message)
	if !ok {
		return domain.Message{}, false
	}

	msg := domain.Message{ID: m.ID}
	if chatID, ok := markedPeerID(m.PeerID); ok {
		msg.ChatID = chatID
	}
	if m.Date > 0 {
		msg.Date = time.Unix(int64(m.Date), 0).UTC()
	}
	if from, ok := m.GetFromID(); ok {
		msg.Sender = senderOf(from, users)
	}

	return msg, true
}

// historyPage builds an ascending page from a newest-first history batch.
// Messages at or below cursor.AfterID are dropped; an empty result ends the stream.
func historyPage(batch []tg.MessageClass, users []tg.UserClass, cursor domain.HistoryCursor) *domain.HistoryPage {
	idx := userIndex(users)

	messages := make([]domain.Message, 0, len(batch))
	for _, mc := range batch {
		msg, ok := convertMessage(mc, idx)
		if !ok || msg.ID <= cursor.AfterID {
			continue
		}
		messages = append(messages, msg)
	}
	sort.Slice(messages, func(i, j int) bool { return messages[i].ID < messages[j].ID })

	page := &domain.HistoryPage{Messages: messages, Next: cursor}
	if len(messages) == 0 {
		page.Done = true
		return page
	}
	page.Next = domain.HistoryCursor{Since: cursor.Since, AfterID: messages[len(messages)-1].ID}
	return page
}

// unpackMessages extracts the message and user lists from a history response
func unpackMessages(res tg.MessagesMessagesClass) ([]tg.MessageClass, []tg.UserClass, error) {
	switch r := res.(type) {
	case *tg.MessagesMessages:
		return r.Messages, r.Users, nil
	case *tg.MessagesMessagesSlice:
		return r.Messages, r.Users, nil
	case *tg.MessagesChannelMessages:
		return r.Messages, r.Users, nil
	case *tg.MessagesMessagesNotModified:
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("unexpected history response %T", res)
	}
}

// unpackChats extracts the chat list from a chats response
func unpackChats(res tg.MessagesChatsClass) []tg.ChatClass {
	switch r := res.(type) {
	case *tg.MessagesChats:
		return r.Chats
	case *tg.MessagesChatsSlice:
		return r.Chats
	default:
		return nil
	}
}

// basicChatAdmins collects creator and admin ids of a basic group
func basicChatAdmins(full tg.ChatFullClass) map[int64]struct{} {
	admins := make(map[int64]struct{})
	chatFull, ok := full.(*tg.ChatFull)
	if !ok {
		return admins
	}
	participants, ok := chatFull.Participants.(*tg.ChatParticipants)
	if !ok {
		return admins
	}
	for _, p := range participants.Participants {
		switch v := p.(type) {
		case *tg.ChatParticipantCreator:
			admins[v.UserID] = struct{}{}
		case *tg.ChatParticipantAdmin:
			admins[v.UserID] = struct{}{}
		}
	}
	return admins
}

// channelAdmins collects creator and admin ids from a participants response
func channelAdmins(res tg.ChannelsChannelParticipantsClass) map[int64]struct{} {
	admins := make(map[int64]struct{})
	list, ok := res.(*tg.ChannelsChannelParticipants)
	if !ok {
		return admins
	}
	for _, p := range list.Participants {
		switch v := p.(type) {
		case *tg.ChannelParticipantCreator:
			admins[v.UserID] = struct{}{}
		case *tg.ChannelParticipantAdmin:
			admins[v.UserID] = struct{}{}
		}
	}
	return admins
}
