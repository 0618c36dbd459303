package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/CareOpsHQ/mednotify/internal/domain/audit"
	"github.com/CareOpsHQ/mednotify/internal/domain/device"
	"github.com/CareOpsHQ/mednotify/internal/domain/notification"
	"github.com/CareOpsHQ/mednotify/internal/domain/preference"
	"github.com/CareOpsHQ/mednotify/internal/domain/recipient"
	"github.com/CareOpsHQ/mednotify/internal/domain/template"
	"github.com/CareOpsHQ/mednotify/internal/prefs"
	"github.com/CareOpsHQ/mednotify/internal/repository/postgres"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type fakeNotifRepo struct {
	rows map[string]*notification.Notification
}

func newFakeNotifRepo() *fakeNotifRepo {
	return &fakeNotifRepo{rows: map[string]*notification.Notification{}}
}

func (f *fakeNotifRepo) Create(_ context.Context, n *notification.Notification) error {
	if n.MaxAttempts <= 0 {
		n.MaxAttempts = notification.DefaultMaxAttempts
	}
	n.Status = notification.StatusPending
	cp := *n
	f.rows[n.ID] = &cp
	return nil
}

func (f *fakeNotifRepo) GetByID(_ context.Context, id string) (*notification.Notification, error) {
	n, ok := f.rows[id]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (f *fakeNotifRepo) ClaimDue(context.Context, int, time.Duration) ([]*notification.Notification, error) {
	return nil, nil
}
func (f *fakeNotifRepo) Release(context.Context, string) error { return nil }
func (f *fakeNotifRepo) MarkSent(context.Context, string, time.Time) error {
	return nil
}
func (f *fakeNotifRepo) MarkDelivered(context.Context, string, time.Time, time.Time) error {
	return nil
}
func (f *fakeNotifRepo) MarkFailed(context.Context, string, int, string) error { return nil }
func (f *fakeNotifRepo) Reschedule(context.Context, string, int, time.Time, string) error {
	return nil
}

func (f *fakeNotifRepo) Cancel(_ context.Context, id string) (bool, error) {
	n, ok := f.rows[id]
	if !ok || n.Status != notification.StatusPending || n.Attempts > 0 || n.LeaseUntil != nil {
		return false, nil
	}
	n.Status = notification.StatusCancelled
	return true, nil
}

func (f *fakeNotifRepo) ResetForRetry(_ context.Context, id string, _ time.Time) error {
	n, ok := f.rows[id]
	if !ok || n.Status != notification.StatusFailed || n.Attempts >= n.MaxAttempts {
		return postgres.ErrNotFound
	}
	n.Status = notification.StatusPending
	return nil
}

func (f *fakeNotifRepo) CountByStatus(context.Context) (map[notification.Status]int64, error) {
	return nil, nil
}
func (f *fakeNotifRepo) ListInApp(context.Context, int64, int) ([]*notification.Notification, error) {
	return nil, nil
}

type fakeTemplateRepo struct {
	byPair map[string]*template.Template
}

func tmplKey(c notification.Category, ch notification.Channel) string {
	return string(c) + "/" + string(ch)
}

func (f *fakeTemplateRepo) GetActive(_ context.Context, c notification.Category, ch notification.Channel) (*template.Template, error) {
	t, ok := f.byPair[tmplKey(c, ch)]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	return t, nil
}

func (f *fakeTemplateRepo) Upsert(_ context.Context, t *template.Template) error {
	f.byPair[tmplKey(t.Category, t.Channel)] = t
	return nil
}

type fakePrefRepo struct {
	prefs map[int64]*preference.Preference
}

func (f *fakePrefRepo) GetOrCreate(_ context.Context, recipientID int64) (*preference.Preference, error) {
	if p, ok := f.prefs[recipientID]; ok {
		return p, nil
	}
	p := preference.Defaults(recipientID)
	f.prefs[recipientID] = p
	return p, nil
}

func (f *fakePrefRepo) Update(_ context.Context, p *preference.Preference) error {
	f.prefs[p.RecipientID] = p
	return nil
}

type fakeDeviceRepo struct {
	devices []*device.Device
	nextID  int64
}

func (f *fakeDeviceRepo) Register(_ context.Context, d *device.Device) error {
	f.nextID++
	d.ID = f.nextID
	d.Active = true
	f.devices = append(f.devices, d)
	return nil
}

func (f *fakeDeviceRepo) ListActive(_ context.Context, recipientID int64) ([]*device.Device, error) {
	var out []*device.Device
	for _, d := range f.devices {
		if d.RecipientID == recipientID && d.Active {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDeviceRepo) Deactivate(_ context.Context, id int64) error {
	for _, d := range f.devices {
		if d.ID == id {
			d.Active = false
		}
	}
	return nil
}

func (f *fakeDeviceRepo) DeactivateByToken(_ context.Context, token string) error {
	for _, d := range f.devices {
		if d.Token == token {
			d.Active = false
		}
	}
	return nil
}

type fakeAuditRepo struct {
	entries []*audit.Entry
}

func (f *fakeAuditRepo) Append(_ context.Context, e *audit.Entry) error {
	e.ID = int64(len(f.entries) + 1)
	e.At = time.Now()
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeAuditRepo) ListByNotification(_ context.Context, id string) ([]*audit.Entry, error) {
	var out []*audit.Entry
	for _, e := range f.entries {
		if e.NotificationID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeAuditRepo) PurgeBefore(context.Context, time.Time) (int64, error) { return 0, nil }

type fakeDirectory struct {
	recs map[int64]*recipient.Recipient
}

func (f *fakeDirectory) GetByID(_ context.Context, id int64) (*recipient.Recipient, error) {
	r, ok := f.recs[id]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	return r, nil
}

type passTx struct{}

func (passTx) WithTx(ctx context.Context, fn func(context.Context) error) error { return fn(ctx) }

type fixture struct {
	svc    *Service
	notifs *fakeNotifRepo
	tmpls  *fakeTemplateRepo
	prefs  *fakePrefRepo
	devs   *fakeDeviceRepo
	audit  *fakeAuditRepo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	notifs := newFakeNotifRepo()
	tmpls := &fakeTemplateRepo{byPair: map[string]*template.Template{}}
	prefRepo := &fakePrefRepo{prefs: map[int64]*preference.Preference{}}
	devs := &fakeDeviceRepo{}
	auditRepo := &fakeAuditRepo{}

	svc := &Service{
		Notifs:    notifs,
		Templates: tmpls,
		PrefRepo:  prefRepo,
		Resolver:  prefs.NewResolver(prefRepo, notification.Channels()),
		Devices:   devs,
		Audit:     auditRepo,
		Directory: &fakeDirectory{recs: map[int64]*recipient.Recipient{
			7: {ID: 7, FullName: "Dana Osei", Email: "dana@example.org", Phone: "+15550100"},
		}},
		Tx:    passTx{},
		Clock: fixedClock{t: time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)},
		Log:   zaptest.NewLogger(t),
	}
	return &fixture{svc: svc, notifs: notifs, tmpls: tmpls, prefs: prefRepo, devs: devs, audit: auditRepo}
}

func (fx *fixture) addTemplate(c notification.Category, ch notification.Channel, subject, body string) {
	fx.tmpls.byPair[tmplKey(c, ch)] = &template.Template{
		Category: c, Channel: ch, Subject: subject, Body: body, Active: true,
	}
}

func TestCreate_OneNotificationPerEnabledTemplatedChannel(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	// sms disabled by the recipient; both channels have templates
	p := preference.Defaults(7)
	p.SMSEnabled = false
	fx.prefs.prefs[7] = p

	fx.addTemplate(notification.CategoryAppointmentReminder, notification.ChannelEmail,
		"Reminder for {{patient}}", "See you at {{time}}.")
	fx.addTemplate(notification.CategoryAppointmentReminder, notification.ChannelSMS,
		"", "Appt at {{time}}")

	got, err := fx.svc.Create(ctx, CreateRequest{
		RecipientID: 7,
		Category:    notification.CategoryAppointmentReminder,
		ContextData: map[string]string{"patient": "Dana", "time": "15:00"},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)

	n := got[0]
	assert.Equal(t, notification.ChannelEmail, n.Channel)
	assert.Equal(t, notification.StatusPending, n.Status)
	assert.Equal(t, "Reminder for Dana", n.Subject)
	assert.Equal(t, "See you at 15:00.", n.Body)
	assert.Equal(t, "dana@example.org", n.Destination)
	assert.Equal(t, notification.DefaultMaxAttempts, n.MaxAttempts)

	entries, err := fx.audit.ListByNotification(ctx, n.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.KindCreated, entries[0].Kind)
}

func TestCreate_DisabledCategoryYieldsNothing(t *testing.T) {
	fx := newFixture(t)

	p := preference.Defaults(7)
	p.Categories[notification.CategoryLabResultsReady] = false
	fx.prefs.prefs[7] = p

	fx.addTemplate(notification.CategoryLabResultsReady, notification.ChannelEmail, "s", "b")

	got, err := fx.svc.Create(context.Background(), CreateRequest{
		RecipientID: 7,
		Category:    notification.CategoryLabResultsReady,
	})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, fx.audit.entries, "no channels enabled must create zero audit rows")
}

func TestCreate_MissingTemplateSkipsChannelSilently(t *testing.T) {
	fx := newFixture(t)

	// only in_app templated; email, sms, push have none
	fx.addTemplate(notification.CategoryPrescriptionReady, notification.ChannelInApp, "", "Ready")

	got, err := fx.svc.Create(context.Background(), CreateRequest{
		RecipientID: 7,
		Category:    notification.CategoryPrescriptionReady,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, notification.ChannelInApp, got[0].Channel)
}

func TestCreate_ExplicitChannelsBypassPreferences(t *testing.T) {
	fx := newFixture(t)

	p := preference.Defaults(7)
	p.EmailEnabled = false
	fx.prefs.prefs[7] = p

	fx.addTemplate(notification.CategoryEmergencyAlert, notification.ChannelEmail, "Alert", "Evacuate")

	got, err := fx.svc.Create(context.Background(), CreateRequest{
		RecipientID: 7,
		Category:    notification.CategoryEmergencyAlert,
		Priority:    notification.PriorityUrgent,
		Channels:    []notification.Channel{notification.ChannelEmail},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, notification.ChannelEmail, got[0].Channel)
}

func TestCreate_PushDestinationSnapshotsFirstActiveToken(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.svc.RegisterDevice(ctx, 7, "tok-1", "ios")
	require.NoError(t, err)

	fx.addTemplate(notification.CategoryAppointmentConfirmation, notification.ChannelPush, "", "Confirmed")

	got, err := fx.svc.Create(ctx, CreateRequest{
		RecipientID: 7,
		Category:    notification.CategoryAppointmentConfirmation,
		Channels:    []notification.Channel{notification.ChannelPush},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "tok-1", got[0].Destination)
}

func TestCreate_UnknownCategoryRejected(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.svc.Create(context.Background(), CreateRequest{
		RecipientID: 7,
		Category:    "billing_overdue",
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "category", verr.Field)
}

func TestCancel_OnlyBeforeFirstAttempt(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.addTemplate(notification.CategoryAppointmentCancellation, notification.ChannelInApp, "", "b")
	got, err := fx.svc.Create(ctx, CreateRequest{
		RecipientID: 7,
		Category:    notification.CategoryAppointmentCancellation,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	id := got[0].ID

	ok, err := fx.svc.Cancel(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	// second cancel: row is no longer pending
	ok, err = fx.svc.Cancel(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	entries, _ := fx.audit.ListByNotification(ctx, id)
	var cancelled int
	for _, e := range entries {
		if e.Kind == audit.KindCancelled {
			cancelled++
		}
	}
	assert.Equal(t, 1, cancelled)
}

func TestRetry_RejectedWhenAttemptsExhausted(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.notifs.rows["n-1"] = &notification.Notification{
		ID: "n-1", Status: notification.StatusFailed, Attempts: 3, MaxAttempts: 3,
	}
	err := fx.svc.Retry(ctx, "n-1")
	require.Error(t, err)
	assert.Equal(t, notification.StatusFailed, fx.notifs.rows["n-1"].Status)

	fx.notifs.rows["n-2"] = &notification.Notification{
		ID: "n-2", Status: notification.StatusFailed, Attempts: 1, MaxAttempts: 3,
	}
	require.NoError(t, fx.svc.Retry(ctx, "n-2"))
	assert.Equal(t, notification.StatusPending, fx.notifs.rows["n-2"].Status)
	assert.Equal(t, 1, fx.notifs.rows["n-2"].Attempts, "manual retry keeps the attempt counter")
}

func TestUpdatePreferences_QuietWindowValidation(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	set := func(s string) *string { return &s }

	_, err := fx.svc.UpdatePreferences(ctx, 7, preference.Patch{
		QuietStart: set("22:00"), QuietEnd: set("22:00"),
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = fx.svc.UpdatePreferences(ctx, 7, preference.Patch{
		QuietStart: set("25:00"), QuietEnd: set("07:00"),
	})
	require.ErrorAs(t, err, &verr)

	p, err := fx.svc.UpdatePreferences(ctx, 7, preference.Patch{
		QuietStart: set("22:00"), QuietEnd: set("07:00"),
	})
	require.NoError(t, err)
	assert.Equal(t, "22:00", p.QuietStart)
	assert.Equal(t, "07:00", p.QuietEnd)
}

func TestUpdatePreferences_UnknownCategoryRejected(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.svc.UpdatePreferences(context.Background(), 7, preference.Patch{
		Categories: map[notification.Category]bool{"newsletter": false},
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestUpsertTemplate_Validation(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	err := fx.svc.UpsertTemplate(ctx, &template.Template{
		Category: "bogus", Channel: notification.ChannelEmail, Body: "b",
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	err = fx.svc.UpsertTemplate(ctx, &template.Template{
		Category: notification.CategoryLabResultsReady, Channel: notification.ChannelEmail,
	})
	require.ErrorAs(t, err, &verr)

	require.NoError(t, fx.svc.UpsertTemplate(ctx, &template.Template{
		Category: notification.CategoryLabResultsReady,
		Channel:  notification.ChannelEmail,
		Subject:  "Results ready",
		Body:     "Your results are in.",
		Active:   true,
	}))
}

func TestRegisterDevice_EmptyTokenRejected(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.svc.RegisterDevice(context.Background(), 7, "", "ios")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}
