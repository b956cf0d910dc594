package bridge

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/attaradev/jetstream-bridge/pkg/errors"
)

// InboxStatus tracks an inbox row through consume-side processing.
type InboxStatus string

const (
	InboxProcessing InboxStatus = "processing"
	InboxProcessed  InboxStatus = "processed"
	InboxFailed     InboxStatus = "failed"
)

// InboxRow records that a given event_id has been (or is being) processed
// by this consumer, so redeliveries of the same JetStream message - or
// even genuinely duplicate publishes - are not applied twice.
type InboxRow struct {
	EventID      string      `gorm:"primaryKey;size:64"`
	EventType    string      `gorm:"size:255;index"`
	ConsumerID   string      `gorm:"size:255;index"`
	ResourceType string      `gorm:"size:255;index:idx_bridge_inbox_resource,priority:1"`
	ResourceID   string      `gorm:"size:255;index:idx_bridge_inbox_resource,priority:2"`
	SourceApp    string      `gorm:"size:255"`
	Payload      []byte
	Status       InboxStatus `gorm:"size:16;not null;index:idx_bridge_inbox_status_created,priority:1"`
	Attempts     int         `gorm:"not null;default:0"`
	CreatedAt    time.Time   `gorm:"index:idx_bridge_inbox_status_created,priority:2"`
	ReceivedAt   time.Time   `gorm:"not null"`
	ProcessedAt  *time.Time
	FailedAt     *time.Time
	ErrorMessage string `gorm:"size:2048"`
}

// InboxBeginParams carries the fields TryBeginProcessing persists on an
// event's first sight, beyond its event_id.
type InboxBeginParams struct {
	EventType    string
	ConsumerID   string
	ResourceType string
	ResourceID   string
	SourceApp    string
	Payload      []byte
}

func (InboxRow) TableName() string { return "bridge_inbox" }

// InboxStore persists InboxRow records for deduplication.
type InboxStore struct {
	db *gorm.DB
}

// NewInboxStore wraps a GORM handle for inbox access.
func NewInboxStore(db *gorm.DB) *InboxStore {
	return &InboxStore{db: db}
}

// Lookup returns the existing row for eventID, if any.
func (s *InboxStore) Lookup(ctx context.Context, eventID string) (*InboxRow, error) {
	var row InboxRow
	err := s.db.WithContext(ctx).Where("event_id = ?", eventID).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to look up inbox row")
	}
	return &row, nil
}

// TryBeginProcessing inserts a "processing" row for eventID if one does not
// already exist, returning started=false without error if it was already
// present. Every first-sight of an event_id is timestamped before the
// handler runs, not just successful ones.
func (s *InboxStore) TryBeginProcessing(ctx context.Context, eventID string, p InboxBeginParams) (started bool, err error) {
	row := InboxRow{
		EventID:      eventID,
		EventType:    p.EventType,
		ConsumerID:   p.ConsumerID,
		ResourceType: p.ResourceType,
		ResourceID:   p.ResourceID,
		SourceApp:    p.SourceApp,
		Payload:      p.Payload,
		Status:       InboxProcessing,
		Attempts:     1,
		ReceivedAt:   time.Now().UTC(),
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "failed to begin inbox processing")
	}
	return res.RowsAffected > 0, nil
}

// MarkProcessed transitions eventID's row to processed.
func (s *InboxStore) MarkProcessed(ctx context.Context, eventID string) error {
	now := time.Now().UTC()
	err := s.db.WithContext(ctx).Model(&InboxRow{}).Where("event_id = ?", eventID).
		Updates(map[string]interface{}{"status": InboxProcessed, "processed_at": &now, "error_message": ""}).Error
	if err != nil {
		return errors.Wrap(err, "failed to mark inbox row processed")
	}
	return nil
}

// MarkFailed transitions eventID's row to failed, recording cause. A failed
// row does not block a redelivery: only a processed row is treated as a
// duplicate by the consumer, so the next delivery of eventID runs the
// handler again.
func (s *InboxStore) MarkFailed(ctx context.Context, eventID string, cause error) error {
	now := time.Now().UTC()
	err := s.db.WithContext(ctx).Model(&InboxRow{}).Where("event_id = ?", eventID).
		Updates(map[string]interface{}{"status": InboxFailed, "error_message": causeString(cause), "failed_at": &now}).Error
	if err != nil {
		return errors.Wrap(err, "failed to mark inbox row failed")
	}
	return nil
}
