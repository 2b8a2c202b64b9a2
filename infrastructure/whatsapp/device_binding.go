package whatsapp

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// IDeviceBindings remembers which whatsmeow device belongs to which instance
// when all instances share one device store.
type IDeviceBindings interface {
	Get(ctx context.Context, instanceID string) (jid string, ok bool, err error)
	Save(ctx context.Context, instanceID, jid string) error
}

type deviceBindingModel struct {
	InstanceID string `gorm:"primaryKey;column:instance_id;size:128"`
	JID        string `gorm:"column:jid;size:128;not null"`
	UpdatedAt  time.Time
}

func (deviceBindingModel) TableName() string { return "whatsapp_device_bindings" }

type DeviceBindingGormStore struct {
	db *gorm.DB
}

func NewDeviceBindingGormStore(db *gorm.DB) *DeviceBindingGormStore {
	return &DeviceBindingGormStore{db: db}
}

func (s *DeviceBindingGormStore) Init(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&deviceBindingModel{})
}

func (s *DeviceBindingGormStore) Get(ctx context.Context, instanceID string) (string, bool, error) {
	var m deviceBindingModel
	err := s.db.WithContext(ctx).Where("instance_id = ?", instanceID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return m.JID, true, nil
}

func (s *DeviceBindingGormStore) Save(ctx context.Context, instanceID, jid string) error {
	m := deviceBindingModel{InstanceID: instanceID, JID: jid, UpdatedAt: time.Now().UTC()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "instance_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"jid", "updated_at"}),
	}).Create(&m).Error
}
