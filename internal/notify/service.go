package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/d9705996/steward/internal/apperr"
	"github.com/d9705996/steward/internal/db"
	"github.com/d9705996/steward/internal/model"
	"gorm.io/gorm"
)

// Lifecycle errors.
var (
	ErrNotificationNotFound = apperr.New(apperr.ErrNotFound, "notification not found")
	ErrInvalidTransition    = apperr.New(apperr.ErrInvariantViolation, "dismissed notifications cannot change status")
	ErrInvalidRetention     = apperr.InvalidField("days", "must not be negative")
	ErrInvalidStatus        = apperr.InvalidField("status", "must be one of unread, read, dismissed")
)

// Service reads notifications and moves them through their lifecycle:
//
//	unread --MarkAsRead--> read --Dismiss--> dismissed
//	unread --Dismiss--> dismissed
//	read --MarkAsUnread--> unread
//
// Nothing leaves dismissed. Requesting the current state is a no-op.
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// NewService returns a Service backed by gdb.
func NewService(gdb *gorm.DB) *Service {
	return &Service{db: gdb, now: func() time.Time { return time.Now().UTC() }}
}

// Get returns the actor's notification by ID.
func (s *Service) Get(ctx context.Context, actorID, id string) (*model.Notification, error) {
	return s.load(s.db.WithContext(ctx), actorID, id)
}

// MarkAsRead moves an unread notification to read and stamps read_at.
func (s *Service) MarkAsRead(ctx context.Context, actorID, id string) (*model.Notification, error) {
	return s.transition(ctx, actorID, id, model.StatusRead, func(now time.Time) map[string]any {
		return map[string]any{"status": model.StatusRead, "read_at": now, "updated_at": now}
	})
}

// MarkAsUnread moves a read notification back to unread and clears read_at.
func (s *Service) MarkAsUnread(ctx context.Context, actorID, id string) (*model.Notification, error) {
	return s.transition(ctx, actorID, id, model.StatusUnread, func(now time.Time) map[string]any {
		return map[string]any{"status": model.StatusUnread, "read_at": nil, "updated_at": now}
	})
}

// Dismiss moves a notification to dismissed and stamps dismissed_at. An
// existing read_at is kept.
func (s *Service) Dismiss(ctx context.Context, actorID, id string) (*model.Notification, error) {
	return s.transition(ctx, actorID, id, model.StatusDismissed, func(now time.Time) map[string]any {
		return map[string]any{"status": model.StatusDismissed, "dismissed_at": now, "updated_at": now}
	})
}

func (s *Service) transition(
	ctx context.Context, actorID, id string, to model.NotificationStatus,
	changes func(time.Time) map[string]any,
) (*model.Notification, error) {
	var out *model.Notification
	err := db.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		n, err := s.load(tx, actorID, id)
		if err != nil {
			return err
		}
		if n.Status == to {
			out = n
			return nil
		}
		if n.Status == model.StatusDismissed {
			return ErrInvalidTransition
		}
		// Guard on the observed status so a concurrent transition is not
		// silently overwritten.
		res := tx.Model(&model.Notification{}).
			Where("id = ? AND status = ?", n.ID, n.Status).
			Updates(changes(s.now()))
		if res.Error != nil {
			return fmt.Errorf("update notification: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.New(apperr.ErrInvariantViolation, "notification changed concurrently; retry")
		}
		out, err = s.load(tx, actorID, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) load(tx *gorm.DB, actorID, id string) (*model.Notification, error) {
	var n model.Notification
	err := tx.Where("id = ? AND user_id = ?", id, actorID).Take(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotificationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load notification: %w", err)
	}
	return &n, nil
}

// MarkAllAsRead marks every unread notification of the user as read, across
// all companies, and returns how many changed.
func (s *Service) MarkAllAsRead(ctx context.Context, userID string) (int64, error) {
	now := s.now()
	res := s.db.WithContext(ctx).Model(&model.Notification{}).
		Where("user_id = ? AND status = ?", userID, model.StatusUnread).
		Updates(map[string]any{"status": model.StatusRead, "read_at": now, "updated_at": now})
	if res.Error != nil {
		return 0, fmt.Errorf("mark all as read: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Cleanup deletes read and dismissed notifications created more than days
// ago, in every company. Unread notifications are kept regardless of age.
// days=0 purges every read and dismissed notification.
func (s *Service) Cleanup(ctx context.Context, days int) (int64, error) {
	return s.cleanup(s.db.WithContext(ctx), days)
}

// CleanupCompany is Cleanup restricted to one company.
func (s *Service) CleanupCompany(ctx context.Context, companyID string, days int) (int64, error) {
	return s.cleanup(s.db.WithContext(ctx).Where("company_id = ?", companyID), days)
}

func (s *Service) cleanup(q *gorm.DB, days int) (int64, error) {
	if days < 0 {
		return 0, ErrInvalidRetention
	}
	cutoff := s.now().AddDate(0, 0, -days)
	res := q.Where("status IN ? AND created_at < ?", []model.NotificationStatus{model.StatusRead, model.StatusDismissed}, cutoff).
		Delete(&model.Notification{})
	if res.Error != nil {
		return 0, fmt.Errorf("cleanup notifications: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Filter narrows List. Zero values mean "any"; Limit defaults to 50.
type Filter struct {
	Status model.NotificationStatus
	Type   model.NotificationType
	Limit  int
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// List returns the user's notifications in the company, newest first.
func (s *Service) List(ctx context.Context, userID, companyID string, f Filter) ([]model.Notification, error) {
	q := s.db.WithContext(ctx).Where("user_id = ? AND company_id = ?", userID, companyID)
	if f.Status != "" {
		if !f.Status.Valid() {
			return nil, ErrInvalidStatus
		}
		q = q.Where("status = ?", f.Status)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)

	var ns []model.Notification
	if err := q.Order("created_at DESC").Limit(limit).Find(&ns).Error; err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return ns, nil
}

// UnreadCount returns the user's unread notification count in the company.
func (s *Service) UnreadCount(ctx context.Context, userID, companyID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.Notification{}).
		Where("user_id = ? AND company_id = ? AND status = ?", userID, companyID, model.StatusUnread).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}

// Stats summarises a set of notifications. ByType is only filled for
// company stats.
type Stats struct {
	Total     int64
	Unread    int64
	Read      int64
	Dismissed int64
	Recent    int64 // created in the last 7 days
	ByType    map[model.NotificationType]int64
}

// UserStats summarises every notification of the user.
func (s *Service) UserStats(ctx context.Context, userID string) (Stats, error) {
	return s.stats(ctx, "user_id = ?", userID, false)
}

// CompanyStats summarises every notification in the company.
func (s *Service) CompanyStats(ctx context.Context, companyID string) (Stats, error) {
	return s.stats(ctx, "company_id = ?", companyID, true)
}

func (s *Service) stats(ctx context.Context, where string, arg string, byType bool) (Stats, error) {
	base := s.db.WithContext(ctx).Model(&model.Notification{}).Where(where, arg)

	var rows []struct {
		Status model.NotificationStatus
		Count  int64
	}
	if err := base.Session(&gorm.Session{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return Stats{}, fmt.Errorf("count by status: %w", err)
	}
	var st Stats
	for _, r := range rows {
		st.Total += r.Count
		switch r.Status {
		case model.StatusUnread:
			st.Unread = r.Count
		case model.StatusRead:
			st.Read = r.Count
		case model.StatusDismissed:
			st.Dismissed = r.Count
		}
	}

	if err := base.Session(&gorm.Session{}).
		Where("created_at >= ?", s.now().AddDate(0, 0, -7)).
		Count(&st.Recent).Error; err != nil {
		return Stats{}, fmt.Errorf("count recent: %w", err)
	}

	if byType {
		var typeRows []struct {
			Type  model.NotificationType
			Count int64
		}
		if err := base.Session(&gorm.Session{}).
			Select("type, COUNT(*) AS count").
			Group("type").
			Scan(&typeRows).Error; err != nil {
			return Stats{}, fmt.Errorf("count by type: %w", err)
		}
		st.ByType = make(map[model.NotificationType]int64, len(typeRows))
		for _, r := range typeRows {
			st.ByType[r.Type] = r.Count
		}
	}
	return st, nil
}
