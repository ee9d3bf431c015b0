package notify_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/d9705996/steward/internal/apperr"
	"github.com/d9705996/steward/internal/dbtest"
	"github.com/d9705996/steward/internal/membership"
	"github.com/d9705996/steward/internal/model"
	"github.com/d9705996/steward/internal/notify"
	"github.com/d9705996/steward/internal/policy"
	"github.com/d9705996/steward/internal/preference"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newNullLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func newDispatcher(t *testing.T, gdb *gorm.DB, prefs notify.Preferences) *notify.Dispatcher {
	t.Helper()
	if prefs == nil {
		prefs = preference.NewResolver(gdb)
	}
	d, err := notify.NewDispatcher(gdb, membership.NewStore(gdb), prefs, newNullLogger())
	require.NoError(t, err)
	return d
}

func notifications(t *testing.T, gdb *gorm.DB) []model.Notification {
	t.Helper()
	var ns []model.Notification
	require.NoError(t, gdb.Order("created_at ASC").Find(&ns).Error)
	return ns
}

func TestDispatch_OptedOutMemberIsSkipped(t *testing.T) {
	gdb := dbtest.Open(t)
	ctx := context.Background()
	c := dbtest.Company(t, gdb, "Acme")
	enabled := dbtest.User(t, gdb, "enabled@example.com")
	optedOut := dbtest.User(t, gdb, "optout@example.com")
	dbtest.Member(t, gdb, enabled.ID, c.ID, policy.RoleMember)
	dbtest.Member(t, gdb, optedOut.ID, c.ID, policy.RoleMember)

	off := false
	_, err := preference.NewResolver(gdb).Upsert(ctx, optedOut.ID, c.ID, model.TypeSurveyAvailable, preference.Patch{InApp: &off})
	require.NoError(t, err)

	res, err := newDispatcher(t, gdb, nil).DispatchSurveyAvailable(ctx, notify.Survey{ID: "s-1", CompanyID: c.ID, Title: "Q3 Pulse"})
	require.NoError(t, err)
	assert.Equal(t, notify.Result{Created: 1, Skipped: 1}, res)

	ns := notifications(t, gdb)
	require.Len(t, ns, 1)
	n := ns[0]
	assert.Equal(t, enabled.ID, n.UserID)
	assert.Equal(t, model.StatusUnread, n.Status)
	assert.Equal(t, "New Survey Available", n.Title)
	assert.Equal(t, "A new survey 'Q3 Pulse' is now available in Acme. Please take a moment to complete it.", n.Message)
	assert.Equal(t, "s-1", n.Data["survey_id"])
	assert.Equal(t, "Q3 Pulse", n.Data["survey_title"])
	assert.Equal(t, "Acme", n.Data["company_name"])
}

func TestDispatch_SkipsInactiveMembersAndOtherCompanies(t *testing.T) {
	gdb := dbtest.Open(t)
	ctx := context.Background()
	c := dbtest.Company(t, gdb, "Acme")
	other := dbtest.Company(t, gdb, "Other")
	active := dbtest.User(t, gdb, "a@example.com")
	suspended := dbtest.User(t, gdb, "s@example.com")
	outsider := dbtest.User(t, gdb, "o@example.com")
	dbtest.Member(t, gdb, active.ID, c.ID, policy.RoleViewer)
	dbtest.Member(t, gdb, suspended.ID, c.ID, policy.RoleViewer)
	dbtest.Member(t, gdb, outsider.ID, other.ID, policy.RoleAdmin)
	require.NoError(t, membership.NewStore(gdb).SetActive(ctx, suspended.ID, c.ID, false))

	res, err := newDispatcher(t, gdb, nil).DispatchAnnouncement(ctx, notify.Announcement{ID: "a-1", CompanyID: c.ID, Title: "Office move"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)

	ns := notifications(t, gdb)
	require.Len(t, ns, 1)
	assert.Equal(t, active.ID, ns[0].UserID)
	assert.Equal(t, "New Announcement", ns[0].Title)
	assert.Equal(t, "New announcement: Office move", ns[0].Message)
}

func TestDispatch_NoDeduplication(t *testing.T) {
	gdb := dbtest.Open(t)
	ctx := context.Background()
	c := dbtest.Company(t, gdb, "Acme")
	u := dbtest.User(t, gdb, "u@example.com")
	dbtest.Member(t, gdb, u.ID, c.ID, policy.RoleMember)
	d := newDispatcher(t, gdb, nil)
	goal := notify.Goal{ID: "g-1", CompanyID: c.ID, Title: "Revenue"}

	for range 2 {
		_, err := d.DispatchGoalUpdate(ctx, goal)
		require.NoError(t, err)
	}

	ns := notifications(t, gdb)
	require.Len(t, ns, 2)
	assert.Equal(t, "Goal Update", ns[0].Title)
	assert.Equal(t, "Goal 'Revenue' has been updated in Acme.", ns[0].Message)
	assert.NotEqual(t, ns[0].ID, ns[1].ID)
}

func TestDispatchLocationAssignment(t *testing.T) {
	gdb := dbtest.Open(t)
	ctx := context.Background()
	c := dbtest.Company(t, gdb, "Acme")
	u := dbtest.User(t, gdb, "u@example.com")
	bystander := dbtest.User(t, gdb, "b@example.com")
	dbtest.Member(t, gdb, u.ID, c.ID, policy.RoleMember)
	dbtest.Member(t, gdb, bystander.ID, c.ID, policy.RoleMember)
	l := dbtest.Location(t, gdb, c.ID, "Leeds Depot")
	d := newDispatcher(t, gdb, nil)

	res, err := d.DispatchLocationAssignment(ctx, u.ID, l.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)

	ns := notifications(t, gdb)
	require.Len(t, ns, 1)
	assert.Equal(t, u.ID, ns[0].UserID)
	assert.Equal(t, "Location Assignment", ns[0].Title)
	assert.Equal(t, "You have been assigned to Leeds Depot in Acme.", ns[0].Message)
	assert.Equal(t, "Leeds Depot", ns[0].Data["location_name"])

	_, err = d.DispatchLocationAssignment(ctx, u.ID, "missing")
	assert.ErrorIs(t, err, notify.ErrLocationNotFound)
}

func TestDispatch_UnknownCompany(t *testing.T) {
	gdb := dbtest.Open(t)
	_, err := newDispatcher(t, gdb, nil).DispatchSurveyAvailable(context.Background(), notify.Survey{ID: "s", CompanyID: "missing"})
	require.ErrorIs(t, err, notify.ErrCompanyNotFound)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

type flakyPrefs struct {
	notify.Preferences
	failFor string
}

func (f flakyPrefs) IsEnabled(ctx context.Context, userID, companyID string, typ model.NotificationType, ch preference.Channel) (bool, error) {
	if userID == f.failFor {
		return false, errors.New("preference store unavailable")
	}
	return f.Preferences.IsEnabled(ctx, userID, companyID, typ, ch)
}

func TestDispatch_PerRecipientFailureDoesNotAbort(t *testing.T) {
	gdb := dbtest.Open(t)
	ctx := context.Background()
	c := dbtest.Company(t, gdb, "Acme")
	a := dbtest.User(t, gdb, "a@example.com")
	b := dbtest.User(t, gdb, "b@example.com")
	z := dbtest.User(t, gdb, "z@example.com")
	for _, u := range []*model.User{a, b, z} {
		dbtest.Member(t, gdb, u.ID, c.ID, policy.RoleMember)
	}
	prefs := flakyPrefs{Preferences: preference.NewResolver(gdb), failFor: b.ID}

	res, err := newDispatcher(t, gdb, prefs).DispatchAnnouncement(ctx, notify.Announcement{ID: "a", CompanyID: c.ID, Title: "Hello"})
	require.NoError(t, err)
	assert.Equal(t, notify.Result{Created: 2, Failed: 1}, res)

	var recipients []string
	for _, n := range notifications(t, gdb) {
		recipients = append(recipients, n.UserID)
	}
	assert.ElementsMatch(t, []string{a.ID, z.ID}, recipients)
}

func seedNotification(t *testing.T, gdb *gorm.DB, userID, companyID string, status model.NotificationStatus, age time.Duration) *model.Notification {
	t.Helper()
	n := &model.Notification{
		UserID:    userID,
		CompanyID: companyID,
		Type:      model.TypeAnnouncement,
		Title:     "t",
		Message:   "m",
		Status:    status,
		CreatedAt: time.Now().UTC().Add(-age),
	}
	require.NoError(t, gdb.Create(n).Error)
	return n
}

func TestLifecycle_ReadThenDismiss(t *testing.T) {
	gdb := dbtest.Open(t)
	svc := notify.NewService(gdb)
	ctx := context.Background()
	n := seedNotification(t, gdb, "u", "c", model.StatusUnread, 0)

	read, err := svc.MarkAsRead(ctx, "u", n.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRead, read.Status)
	require.NotNil(t, read.ReadAt)

	dismissed, err := svc.Dismiss(ctx, "u", n.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDismissed, dismissed.Status)
	assert.NotNil(t, dismissed.ReadAt)
	assert.NotNil(t, dismissed.DismissedAt)
	assert.True(t, read.ReadAt.Equal(*dismissed.ReadAt), "dismiss keeps read_at")
}

func TestLifecycle_Transitions(t *testing.T) {
	gdb := dbtest.Open(t)
	svc := notify.NewService(gdb)
	ctx := context.Background()

	t.Run("unread dismissed directly", func(t *testing.T) {
		n := seedNotification(t, gdb, "u", "c", model.StatusUnread, 0)
		got, err := svc.Dismiss(ctx, "u", n.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusDismissed, got.Status)
		assert.Nil(t, got.ReadAt)
	})

	t.Run("read back to unread clears read_at", func(t *testing.T) {
		n := seedNotification(t, gdb, "u", "c", model.StatusUnread, 0)
		_, err := svc.MarkAsRead(ctx, "u", n.ID)
		require.NoError(t, err)
		got, err := svc.MarkAsUnread(ctx, "u", n.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusUnread, got.Status)
		assert.Nil(t, got.ReadAt)
	})

	t.Run("repeating current state is a no-op", func(t *testing.T) {
		n := seedNotification(t, gdb, "u", "c", model.StatusUnread, 0)
		first, err := svc.MarkAsRead(ctx, "u", n.ID)
		require.NoError(t, err)
		again, err := svc.MarkAsRead(ctx, "u", n.ID)
		require.NoError(t, err)
		assert.True(t, first.ReadAt.Equal(*again.ReadAt))
	})

	t.Run("nothing leaves dismissed", func(t *testing.T) {
		n := seedNotification(t, gdb, "u", "c", model.StatusDismissed, 0)
		_, err := svc.MarkAsRead(ctx, "u", n.ID)
		assert.ErrorIs(t, err, notify.ErrInvalidTransition)
		_, err = svc.MarkAsUnread(ctx, "u", n.ID)
		require.ErrorIs(t, err, notify.ErrInvalidTransition)
		assert.ErrorIs(t, err, apperr.ErrInvariantViolation)
	})

	t.Run("other users cannot touch it", func(t *testing.T) {
		n := seedNotification(t, gdb, "u", "c", model.StatusUnread, 0)
		_, err := svc.MarkAsRead(ctx, "someone-else", n.ID)
		assert.ErrorIs(t, err, notify.ErrNotificationNotFound)
	})
}

func TestMarkAllAsRead(t *testing.T) {
	gdb := dbtest.Open(t)
	svc := notify.NewService(gdb)
	ctx := context.Background()
	seedNotification(t, gdb, "u", "c1", model.StatusUnread, 0)
	seedNotification(t, gdb, "u", "c2", model.StatusUnread, 0)
	seedNotification(t, gdb, "u", "c1", model.StatusDismissed, 0)
	seedNotification(t, gdb, "other", "c1", model.StatusUnread, 0)

	n, err := svc.MarkAllAsRead(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	unread, err := svc.UnreadCount(ctx, "other", "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)
}

func TestCleanup_KeepsOldUnread(t *testing.T) {
	gdb := dbtest.Open(t)
	svc := notify.NewService(gdb)
	day := 24 * time.Hour
	oldRead := seedNotification(t, gdb, "u", "c", model.StatusRead, 100*day)
	oldUnread := seedNotification(t, gdb, "u", "c", model.StatusUnread, 200*day)

	deleted, err := svc.Cleanup(context.Background(), 90)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var remaining []model.Notification
	require.NoError(t, gdb.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, oldUnread.ID, remaining[0].ID)
	assert.NotEqual(t, oldRead.ID, remaining[0].ID)
}

func TestCleanup_RespectsCutoff(t *testing.T) {
	gdb := dbtest.Open(t)
	svc := notify.NewService(gdb)
	day := 24 * time.Hour
	seedNotification(t, gdb, "u", "c", model.StatusDismissed, 10*day)
	seedNotification(t, gdb, "u", "c", model.StatusDismissed, 40*day)

	deleted, err := svc.Cleanup(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = svc.Cleanup(context.Background(), -1)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestCleanup_ZeroDaysPurgesAllReadAndDismissed(t *testing.T) {
	gdb := dbtest.Open(t)
	svc := notify.NewService(gdb)
	seedNotification(t, gdb, "u", "c", model.StatusRead, time.Minute)
	seedNotification(t, gdb, "u", "c", model.StatusDismissed, time.Minute)
	unread := seedNotification(t, gdb, "u", "c", model.StatusUnread, time.Minute)

	deleted, err := svc.Cleanup(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	remaining := notifications(t, gdb)
	require.Len(t, remaining, 1)
	assert.Equal(t, unread.ID, remaining[0].ID)
}

func TestCleanupCompany_LeavesOtherCompanies(t *testing.T) {
	gdb := dbtest.Open(t)
	svc := notify.NewService(gdb)
	ctx := context.Background()
	day := 24 * time.Hour
	seedNotification(t, gdb, "u", "a", model.StatusRead, 5*day)
	other := seedNotification(t, gdb, "u", "b", model.StatusRead, 5*day)

	deleted, err := svc.CleanupCompany(ctx, "a", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	remaining := notifications(t, gdb)
	require.Len(t, remaining, 1)
	assert.Equal(t, other.ID, remaining[0].ID)

	_, err = svc.CleanupCompany(ctx, "a", -5)
	assert.ErrorIs(t, err, notify.ErrInvalidRetention)
}

func TestListAndStats(t *testing.T) {
	gdb := dbtest.Open(t)
	svc := notify.NewService(gdb)
	ctx := context.Background()
	day := 24 * time.Hour
	seedNotification(t, gdb, "u", "c", model.StatusUnread, 1*time.Hour)
	seedNotification(t, gdb, "u", "c", model.StatusRead, 2*day)
	seedNotification(t, gdb, "u", "c", model.StatusDismissed, 30*day)
	seedNotification(t, gdb, "u", "other", model.StatusUnread, 0)
	seedNotification(t, gdb, "v", "c", model.StatusUnread, 0)
	require.NoError(t, gdb.Create(&model.Notification{
		UserID: "v", CompanyID: "c", Type: model.TypeGoalUpdate, Title: "t", Message: "m", Status: model.StatusRead,
	}).Error)

	all, err := svc.List(ctx, "u", "c", notify.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, model.StatusUnread, all[0].Status, "newest first")

	read, err := svc.List(ctx, "u", "c", notify.Filter{Status: model.StatusRead})
	require.NoError(t, err)
	assert.Len(t, read, 1)

	limited, err := svc.List(ctx, "u", "c", notify.Filter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	_, err = svc.List(ctx, "u", "c", notify.Filter{Status: "archived"})
	assert.ErrorIs(t, err, notify.ErrInvalidStatus)

	us, err := svc.UserStats(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, int64(4), us.Total)
	assert.Equal(t, int64(2), us.Unread)
	assert.Equal(t, int64(1), us.Read)
	assert.Equal(t, int64(1), us.Dismissed)
	assert.Equal(t, int64(3), us.Recent)
	assert.Nil(t, us.ByType)

	cs, err := svc.CompanyStats(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, int64(5), cs.Total)
	assert.Equal(t, map[model.NotificationType]int64{
		model.TypeAnnouncement: 4,
		model.TypeGoalUpdate:   1,
	}, cs.ByType)
}
