package bridge

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/attaradev/jetstream-bridge/pkg/errors"
)

// OutboxStatus tracks an outbox row through its publish lifecycle.
type OutboxStatus string

const (
	OutboxPending OutboxStatus = "pending"
	OutboxSent    OutboxStatus = "sent"
	OutboxFailed  OutboxStatus = "failed"
)

// OutboxRow is a single event awaiting publish, written in the same
// transaction as the business change that produced it so a publish can
// never be lost to a crash between the write and the publish. Payload holds
// the fully encoded envelope bytes the dispatcher republishes verbatim.
type OutboxRow struct {
	ID             string       `gorm:"primaryKey;size:64"`
	Subject        string       `gorm:"size:255;index;not null"`
	ResourceType   string       `gorm:"size:255;index:idx_bridge_outbox_resource,priority:1"`
	ResourceID     string       `gorm:"size:255;index:idx_bridge_outbox_resource,priority:2"`
	EventType      string       `gorm:"size:255"`
	DestinationApp string       `gorm:"size:255"`
	Payload        []byte       `gorm:"not null"`
	Status         OutboxStatus `gorm:"size:16;not null;default:pending;index:idx_bridge_outbox_status_created,priority:1"`
	Attempts       int          `gorm:"not null;default:0"`
	NotBefore      time.Time    `gorm:"index;not null"`
	ErrorMessage   string       `gorm:"size:2048"`
	CreatedAt      time.Time    `gorm:"index:idx_bridge_outbox_status_created,priority:2"`
	UpdatedAt      time.Time
	PublishedAt    *time.Time
	FailedAt       *time.Time
}

// OutboxInsert is the set of fields Insert persists for a new outbox row.
type OutboxInsert struct {
	ID             string
	Subject        string
	ResourceType   string
	ResourceID     string
	EventType      string
	DestinationApp string
	Payload        []byte
}

// TableName pins the GORM table name so it does not shift if the struct is
// renamed.
func (OutboxRow) TableName() string { return "bridge_outbox" }

// OutboxStore persists and claims OutboxRow records.
type OutboxStore struct {
	db *gorm.DB
}

// NewOutboxStore wraps a GORM handle for outbox access.
func NewOutboxStore(db *gorm.DB) *OutboxStore {
	return &OutboxStore{db: db}
}

// Insert writes a new outbox row, eligible for dispatch immediately. Insert
// is meant to be called within the caller's own business transaction via
// WithTx.
func (s *OutboxStore) Insert(ctx context.Context, in OutboxInsert) error {
	row := OutboxRow{
		ID:             in.ID,
		Subject:        in.Subject,
		ResourceType:   in.ResourceType,
		ResourceID:     in.ResourceID,
		EventType:      in.EventType,
		DestinationApp: in.DestinationApp,
		Payload:        in.Payload,
		Status:         OutboxPending,
		NotBefore:      time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return errors.Wrap(err, "failed to insert outbox row")
	}
	return nil
}

// WithTx returns an OutboxStore bound to an existing transaction, for
// callers that want the outbox insert to commit atomically with their own
// business-entity write.
func (s *OutboxStore) WithTx(tx *gorm.DB) *OutboxStore {
	return &OutboxStore{db: tx}
}

// ClaimBatch atomically reserves up to limit pending rows that are due
// (not_before <= now) by incrementing their attempts counter, returning the
// post-increment rows for the caller to publish. The CAS on (id, attempts)
// ensures two dispatcher workers racing on the same row never both "win"
// the claim.
func (s *OutboxStore) ClaimBatch(ctx context.Context, limit int) ([]OutboxRow, error) {
	var candidates []OutboxRow
	now := time.Now().UTC()

	err := s.db.WithContext(ctx).
		Where("status = ? AND not_before <= ?", OutboxPending, now).
		Order("not_before ASC").
		Limit(limit).
		Find(&candidates).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan outbox")
	}

	claimed := make([]OutboxRow, 0, len(candidates))
	for _, row := range candidates {
		res := s.db.WithContext(ctx).Model(&OutboxRow{}).
			Where("id = ? AND attempts = ?", row.ID, row.Attempts).
			Update("attempts", row.Attempts+1)
		if res.Error != nil {
			return claimed, errors.Wrap(res.Error, "failed to claim outbox row")
		}
		if res.RowsAffected == 0 {
			// Lost the race to another worker; skip.
			continue
		}
		row.Attempts++
		claimed = append(claimed, row)
	}
	return claimed, nil
}

// MarkSent transitions a row to sent.
func (s *OutboxStore) MarkSent(ctx context.Context, id string) error {
	now := time.Now().UTC()
	err := s.db.WithContext(ctx).Model(&OutboxRow{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": OutboxSent, "published_at": &now, "error_message": ""}).Error
	if err != nil {
		return errors.Wrap(err, "failed to mark outbox row sent")
	}
	return nil
}

// MarkPendingWithBackoff leaves a row pending but pushes not_before out by
// delay and records the error that caused the retry.
func (s *OutboxStore) MarkPendingWithBackoff(ctx context.Context, id string, delay time.Duration, cause error) error {
	notBefore := time.Now().UTC().Add(delay)
	err := s.db.WithContext(ctx).Model(&OutboxRow{}).Where("id = ?", id).
		Updates(map[string]interface{}{"not_before": notBefore, "error_message": causeString(cause)}).Error
	if err != nil {
		return errors.Wrap(err, "failed to reschedule outbox row")
	}
	return nil
}

// MarkFailed transitions a row to permanently failed after exhausting
// retries.
func (s *OutboxStore) MarkFailed(ctx context.Context, id string, cause error) error {
	now := time.Now().UTC()
	err := s.db.WithContext(ctx).Model(&OutboxRow{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": OutboxFailed, "error_message": causeString(cause), "failed_at": &now}).Error
	if err != nil {
		return errors.Wrap(err, "failed to mark outbox row failed")
	}
	return nil
}

func causeString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
