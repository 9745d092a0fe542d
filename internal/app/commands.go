package app

import (
	"context"
	"fmt"

	"notisum/internal/eventbus"
	"notisum/internal/store"
	logx "notisum/pkg/logx"
)

// UI command surface. Each mutation writes the store first, then emits a
// conversation.updated refresh so list views stay current without polling.

func (a *App) Conversations(ctx context.Context) ([]*store.Conversation, error) {
	return a.store.ListConversations(ctx)
}

func (a *App) Summaries(ctx context.Context, conversationID int64) ([]*store.Summary, error) {
	return a.store.ListSummaries(ctx, conversationID)
}

func (a *App) Messages(ctx context.Context, conversationID int64, n int) ([]*store.Message, error) {
	return a.store.RecentMessages(ctx, conversationID, n)
}

// MarkRead zeroes the unread counter.
func (a *App) MarkRead(ctx context.Context, conversationID int64) error {
	if err := a.store.ResetUnread(ctx, conversationID); err != nil {
		return err
	}
	return a.announce(ctx, conversationID)
}

// SetMuted flips alert suppression. The pipeline's cache is updated in
// the same call so suppression takes effect immediately.
func (a *App) SetMuted(ctx context.Context, conversationID int64, muted bool) error {
	conv, err := a.store.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv == nil {
		return fmt.Errorf("conversation %d not found", conversationID)
	}
	if err := a.store.SetMuted(ctx, conversationID, muted); err != nil {
		return err
	}
	a.pipe.SetMutedKey(store.Key{Name: conv.Name, SourceID: conv.SourceID}, muted)
	a.log.Info("mute changed", logx.Int64("conversation", conversationID), logx.Bool("muted", muted))
	return a.announce(ctx, conversationID)
}

func (a *App) SetBlocked(ctx context.Context, conversationID int64, blocked bool) error {
	if err := a.store.SetBlocked(ctx, conversationID, blocked); err != nil {
		return err
	}
	a.log.Info("block changed", logx.Int64("conversation", conversationID), logx.Bool("blocked", blocked))
	return a.announce(ctx, conversationID)
}

func (a *App) SetPinned(ctx context.Context, conversationID int64, pinned bool) error {
	if err := a.store.SetPinned(ctx, conversationID, pinned); err != nil {
		return err
	}
	return a.announce(ctx, conversationID)
}

func (a *App) SetAlias(ctx context.Context, conversationID int64, alias string) error {
	if err := a.store.SetAlias(ctx, conversationID, alias); err != nil {
		return err
	}
	return a.announce(ctx, conversationID)
}

func (a *App) SetSummaryEnabled(ctx context.Context, conversationID int64, enabled bool) error {
	if err := a.store.SetSummaryEnabled(ctx, conversationID, enabled); err != nil {
		return err
	}
	return a.announce(ctx, conversationID)
}

// SetAutoSummary adjusts the per-conversation trigger. A count of 0
// falls back to the configured default threshold.
func (a *App) SetAutoSummary(ctx context.Context, conversationID int64, enabled bool, count int64) error {
	if err := a.store.SetAutoSummary(ctx, conversationID, enabled, count); err != nil {
		return err
	}
	return a.announce(ctx, conversationID)
}

func (a *App) DeleteConversation(ctx context.Context, conversationID int64) error {
	conv, err := a.store.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv == nil {
		return nil
	}
	if err := a.store.DeleteConversation(ctx, conversationID); err != nil {
		return err
	}
	a.pipe.SetMutedKey(store.Key{Name: conv.Name, SourceID: conv.SourceID}, false)
	a.log.Info("conversation deleted", logx.Int64("conversation", conversationID))
	return nil
}

func (a *App) announce(ctx context.Context, conversationID int64) error {
	conv, err := a.store.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv == nil {
		return nil
	}
	a.bus.Publish(eventbus.Event{
		Type: eventbus.TypeConversationUpdated,
		Data: eventbus.ConversationUpdated{
			ConversationID: conv.ID,
			Name:           conv.Name,
			UnreadCount:    conv.UnreadCount,
			LastMessage:    conv.LastMessage,
			LastSender:     conv.LastSender,
			LastTime:       conv.LastTime,
		},
	})
	return nil
}
