package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/therapy_shop/internal/models"
	"github.com/Skotchmaster/therapy_shop/internal/repo"
	"github.com/Skotchmaster/therapy_shop/internal/testutil"
	"github.com/Skotchmaster/therapy_shop/internal/transport"
	"github.com/Skotchmaster/therapy_shop/pkg/events"
)

func strp(s string) *string { return &s }
func intp(i int) *int       { return &i }

func TestConfigAbsentUntilSaved(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	svc := &ConfigService{Repo: &repo.GormRepo{DB: db}}

	_, err := svc.Get(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, svc.MailConfigured(ctx))

	saved, err := svc.Save(ctx, transport.AdminConfigPatch{SMTPHost: strp("smtp.example.com"), SMTPPort: intp(587)})
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com", saved.SMTPHost)
	assert.False(t, svc.MailConfigured(ctx), "sender still missing")

	_, err = svc.Save(ctx, transport.AdminConfigPatch{MailFrom: strp("shop@example.com")})
	require.NoError(t, err)
	assert.True(t, svc.MailConfigured(ctx))

	var rows []models.AdminConfig
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, models.AdminConfigID, rows[0].ID)
	assert.Equal(t, 587, rows[0].SMTPPort)
	assert.Equal(t, "shop@example.com", rows[0].MailFrom)

	// a fresh service reads what the first one wrote
	other := &ConfigService{Repo: &repo.GormRepo{DB: db}}
	got, err := other.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com", got.SMTPHost)
}

func TestConfigGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	svc := &ConfigService{Repo: &repo.GormRepo{DB: testutil.NewDB(t)}}
	_, err := svc.Save(ctx, transport.AdminConfigPatch{PaymentProvider: strp("stripe")})
	require.NoError(t, err)

	got, err := svc.Get(ctx)
	require.NoError(t, err)
	got.PaymentProvider = "mutated"

	again, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "stripe", again.PaymentProvider)
}

func TestConfigRejectsBadPort(t *testing.T) {
	svc := &ConfigService{Repo: &repo.GormRepo{DB: testutil.NewDB(t)}}
	_, err := svc.Save(context.Background(), transport.AdminConfigPatch{SMTPPort: intp(70000)})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestConfigConcurrentSaves(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	svc := &ConfigService{Repo: &repo.GormRepo{DB: db}}

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Save(ctx, transport.AdminConfigPatch{SMTPPort: intp(1000 + i)})
			assert.NoError(t, err)
			_, err = svc.Get(ctx)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := svc.Get(ctx)
	require.NoError(t, err)
	var row models.AdminConfig
	require.NoError(t, db.First(&row).Error)
	assert.Equal(t, row.SMTPPort, got.SMTPPort, "cache matches the last write")
}

func TestMailNotifier(t *testing.T) {
	ctx := context.Background()
	cfg := &ConfigService{Repo: &repo.GormRepo{DB: testutil.NewDB(t)}}
	rec := &testutil.Recorder{}
	n := &MailNotifier{Config: cfg, Publisher: rec}

	assert.ErrorIs(t, n.Send(ctx, "a@example.com", "hi", "body"), ErrNotifierUnavailable)

	_, err := cfg.Save(ctx, transport.AdminConfigPatch{SMTPHost: strp("smtp"), MailFrom: strp("shop@example.com")})
	require.NoError(t, err)

	require.NoError(t, n.Send(ctx, "a@example.com", "hi", "body"))
	require.Len(t, rec.Events, 1)
	assert.Equal(t, events.TopicMail, rec.Events[0].Topic)
	msg := rec.Events[0].Body.(MailRequest)
	assert.Equal(t, "shop@example.com", msg.From)
	assert.Equal(t, "a@example.com", msg.To)

	noBroker := &MailNotifier{Config: cfg}
	assert.ErrorIs(t, noBroker.Send(ctx, "a@example.com", "hi", "body"), ErrNotifierUnavailable)
}
