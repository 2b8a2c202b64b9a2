package repository

import (
	"context"
	"time"

	domainConversation "github.com/AzielCF/az-wap-sales/domains/conversation"
	"github.com/AzielCF/az-wap-sales/infrastructure/valkey"
	"github.com/sirupsen/logrus"
)

// ValkeyStatusCache puts a read-through Valkey cache in front of another store
// for conversation states. Messages go straight to the inner store.
// Cache failures are logged and fall back to the inner store.
type ValkeyStatusCache struct {
	domainConversation.IConversationStore
	client *valkey.Client
	ttl    time.Duration
}

func NewValkeyStatusCache(inner domainConversation.IConversationStore, client *valkey.Client, ttl time.Duration) *ValkeyStatusCache {
	return &ValkeyStatusCache{IConversationStore: inner, client: client, ttl: ttl}
}

func (c *ValkeyStatusCache) key(senderID string) string {
	return c.client.Key("conversation", "status", senderID)
}

func (c *ValkeyStatusCache) GetConversationStatus(ctx context.Context, senderID string) (domainConversation.State, error) {
	var cached domainConversation.State
	found, err := c.client.GetJSON(ctx, c.key(senderID), &cached)
	if err != nil {
		logrus.WithError(err).Warn("[VALKEY] Status cache read failed, using database")
	}
	if found {
		return cached, nil
	}

	state, err := c.IConversationStore.GetConversationStatus(ctx, senderID)
	if err != nil {
		return state, err
	}
	c.fill(ctx, state)
	return state, nil
}

func (c *ValkeyStatusCache) EnsureConversation(ctx context.Context, senderID string) (domainConversation.State, error) {
	state, err := c.IConversationStore.EnsureConversation(ctx, senderID)
	if err != nil {
		return state, err
	}
	c.fill(ctx, state)
	return state, nil
}

func (c *ValkeyStatusCache) SetConversationStatus(ctx context.Context, senderID string, status domainConversation.Status, operatorID string) error {
	if err := c.IConversationStore.SetConversationStatus(ctx, senderID, status, operatorID); err != nil {
		return err
	}
	state, err := c.IConversationStore.GetConversationStatus(ctx, senderID)
	if err != nil {
		logrus.WithError(err).Warn("[VALKEY] Could not reload status after update")
		return nil
	}
	c.write(ctx, state)
	return nil
}

// fill only populates a missing key: a value read before an operator update
// must not replace the one that update wrote.
func (c *ValkeyStatusCache) fill(ctx context.Context, state domainConversation.State) {
	if _, err := c.client.SetJSONIfAbsent(ctx, c.key(state.SenderID), state, c.ttl); err != nil {
		logrus.WithError(err).Warn("[VALKEY] Status cache write failed")
	}
}

func (c *ValkeyStatusCache) write(ctx context.Context, state domainConversation.State) {
	if err := c.client.SetJSON(ctx, c.key(state.SenderID), state, c.ttl); err != nil {
		logrus.WithError(err).Warn("[VALKEY] Status cache write failed")
	}
}
