package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	domainConversation "github.com/AzielCF/az-wap-sales/domains/conversation"
	pkgError "github.com/AzielCF/az-wap-sales/pkg/error"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// --- Persistence Models ---

type messageModel struct {
	Seq       uint64    `gorm:"primaryKey;autoIncrement;column:seq"`
	ID        string    `gorm:"column:id;uniqueIndex;not null"`
	SenderID  string    `gorm:"column:sender_id;not null;index"`
	Text      string    `gorm:"column:text;type:text;not null"`
	Author    string    `gorm:"column:author;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (messageModel) TableName() string { return "conversation_messages" }

type conversationModel struct {
	SenderID           string         `gorm:"primaryKey;column:sender_id"`
	Status             string         `gorm:"column:status;not null;default:'bot'"`
	AssignedOperatorID sql.NullString `gorm:"column:assigned_operator_id"`
	LastActivity       time.Time      `gorm:"column:last_activity;not null;index"`
	CreatedAt          time.Time      `gorm:"column:created_at;not null"`
	UpdatedAt          time.Time      `gorm:"column:updated_at;not null"`
}

func (conversationModel) TableName() string { return "conversations" }

// --- Repository Implementation ---

type ConversationGormStore struct {
	db *gorm.DB
}

func NewConversationGormStore(db *gorm.DB) *ConversationGormStore {
	return &ConversationGormStore{db: db}
}

func (r *ConversationGormStore) Init(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&messageModel{}, &conversationModel{})
}

func (r *ConversationGormStore) AppendMessage(ctx context.Context, senderID, text string, author domainConversation.Author) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m := messageModel{
			ID:        uuid.NewString(),
			SenderID:  senderID,
			Text:      text,
			Author:    string(author),
			CreatedAt: now,
		}
		if err := tx.Create(&m).Error; err != nil {
			return err
		}
		return tx.Model(&conversationModel{}).
			Where("sender_id = ?", senderID).
			Update("last_activity", now).Error
	})
}

// GetRecentHistory returns the last limit messages, oldest first. limit <= 0 means all.
func (r *ConversationGormStore) GetRecentHistory(ctx context.Context, senderID string, limit int) ([]domainConversation.Message, error) {
	var rows []messageModel
	q := r.db.WithContext(ctx).Where("sender_id = ?", senderID).Order("seq desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]domainConversation.Message, len(rows))
	for i, row := range rows {
		out[len(rows)-1-i] = domainConversation.Message{
			ID:        row.ID,
			SenderID:  row.SenderID,
			Text:      row.Text,
			Author:    domainConversation.Author(row.Author),
			CreatedAt: row.CreatedAt,
		}
	}
	return out, nil
}

func (r *ConversationGormStore) GetConversationStatus(ctx context.Context, senderID string) (domainConversation.State, error) {
	var m conversationModel
	if err := r.db.WithContext(ctx).First(&m, "sender_id = ?", senderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domainConversation.State{}, pkgError.UnknownSenderError{SenderID: senderID}
		}
		return domainConversation.State{}, err
	}
	return toState(m), nil
}

func (r *ConversationGormStore) EnsureConversation(ctx context.Context, senderID string) (domainConversation.State, error) {
	now := time.Now().UTC()
	m := conversationModel{
		SenderID:     senderID,
		Status:       string(domainConversation.StatusBot),
		LastActivity: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sender_id"}},
		DoNothing: true,
	}).Create(&m).Error
	if err != nil {
		return domainConversation.State{}, err
	}
	return r.GetConversationStatus(ctx, senderID)
}

func (r *ConversationGormStore) SetConversationStatus(ctx context.Context, senderID string, status domainConversation.Status, operatorID string) error {
	now := time.Now().UTC()
	m := conversationModel{
		SenderID:           senderID,
		Status:             string(status),
		AssignedOperatorID: sql.NullString{String: operatorID, Valid: operatorID != ""},
		LastActivity:       now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sender_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "assigned_operator_id", "updated_at"}),
	}).Create(&m).Error
}

func (r *ConversationGormStore) ListConversations(ctx context.Context) ([]domainConversation.State, error) {
	var rows []conversationModel
	if err := r.db.WithContext(ctx).Order("last_activity desc, sender_id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domainConversation.State, 0, len(rows))
	for _, row := range rows {
		out = append(out, toState(row))
	}
	return out, nil
}

func toState(m conversationModel) domainConversation.State {
	return domainConversation.State{
		SenderID:           m.SenderID,
		Status:             domainConversation.Status(m.Status),
		AssignedOperatorID: m.AssignedOperatorID.String,
		LastActivity:       m.LastActivity,
	}
}
