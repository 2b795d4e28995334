package bot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qsmarket/market-bot/internal/domain"
	"github.com/qsmarket/market-bot/internal/i18n"
	"github.com/qsmarket/market-bot/internal/msgstate"
	"github.com/qsmarket/market-bot/internal/render"
	"github.com/qsmarket/market-bot/internal/responder/respondertest"
	"github.com/qsmarket/market-bot/internal/stage"
	"github.com/qsmarket/market-bot/internal/update"
)

type fakeStageRepo struct {
	stages  map[string]*domain.Stage
	buttons map[string][]*domain.StageButton
}

func (f *fakeStageRepo) Stage(_ context.Context, key string) (*domain.Stage, error) {
	st, ok := f.stages[key]
	if !ok {
		return nil, stage.ErrNotFound
	}
	return st, nil
}

func (f *fakeStageRepo) ButtonByLabel(_ context.Context, label string) (*domain.StageButton, error) {
	for _, buttons := range f.buttons {
		for _, b := range buttons {
			if b.Enabled && (b.TextFa == label || b.TextEn == label) {
				return b, nil
			}
		}
	}
	return nil, stage.ErrNotFound
}

func (f *fakeStageRepo) Buttons(_ context.Context, key string) ([]*domain.StageButton, error) {
	return f.buttons[key], nil
}

type fakeUsers struct {
	users       map[int64]*domain.User
	upserts     int
	languages   map[int64]string
	cleanStates map[int64]bool
	failUpsert  bool
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{
		users:       make(map[int64]*domain.User),
		languages:   make(map[int64]string),
		cleanStates: make(map[int64]bool),
	}
}

func (f *fakeUsers) Upsert(_ context.Context, telegramID int64, firstName, lastName, username string) (*domain.User, error) {
	if f.failUpsert {
		return nil, errors.New("db down")
	}

	f.upserts++
	user, ok := f.users[telegramID]
	if !ok {
		user = &domain.User{TelegramID: telegramID, Language: "fa"}
		f.users[telegramID] = user
	}
	user.FirstName = firstName
	user.LastName = lastName
	user.Username = username
	return user, nil
}

func (f *fakeUsers) ByTelegramID(_ context.Context, telegramID int64) (*domain.User, error) {
	user, ok := f.users[telegramID]
	if !ok {
		return nil, errors.New("not found")
	}
	return user, nil
}

func (f *fakeUsers) SetLanguage(_ context.Context, telegramID int64, language string) error {
	f.languages[telegramID] = language
	if user, ok := f.users[telegramID]; ok {
		user.Language = language
	}
	return nil
}

func (f *fakeUsers) SetCleanChatMode(_ context.Context, telegramID int64, enabled bool) error {
	f.cleanStates[telegramID] = enabled
	if user, ok := f.users[telegramID]; ok {
		user.CleanChatMode = enabled
	}
	return nil
}

func newRenderer(t *testing.T) (*render.Renderer, *respondertest.Recorder) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	rec := respondertest.New()
	return render.New(rec, msgstate.NewTracker(client, nil, time.Hour), nil), rec
}

func homeTree() *fakeStageRepo {
	return &fakeStageRepo{
		stages: map[string]*domain.Stage{
			"home": {Key: "home", TextFa: "منوی اصلی", TextEn: "Main menu", Enabled: true},
			"services": {
				Key: "services", TextFa: "خدمات", TextEn: "Services",
				Enabled: true, ParentKey: "home",
			},
		},
		buttons: map[string][]*domain.StageButton{
			"home": {
				{StageKey: "home", Row: 0, Column: 0, TextEn: "Services", TextFa: "خدمات",
					Enabled: true, ButtonType: domain.ButtonTypeStage, TargetStageKey: "services"},
			},
		},
	}
}

func TestStartRegistersUserAndRendersHome(t *testing.T) {
	ctx := context.Background()
	renderer, rec := newRenderer(t)
	users := newFakeUsers()
	nav := NewStageNavigator(stage.NewService(homeTree(), nil, nil), renderer, users, nil, nil)

	u := &update.Context{UserID: 7, ChatID: 7, HasUser: true, Text: "/start", FirstName: "Sara", Language: "en"}
	require.True(t, nav.CanHandle(ctx, u))

	handled, err := nav.Handle(ctx, u)
	require.NoError(t, err)
	assert.True(t, handled)

	assert.Equal(t, 1, users.upserts)
	assert.Equal(t, "Sara", users.users[7].FirstName)

	calls := rec.Calls()
	require.NotEmpty(t, calls)
	last := calls[len(calls)-1]
	assert.Equal(t, "send_inline", last.Op)
	assert.Equal(t, "Services", last.Inline[0][0].Text)
}

func TestStageCallbackNavigatesAndAddsBackButton(t *testing.T) {
	ctx := context.Background()
	renderer, rec := newRenderer(t)
	users := newFakeUsers()
	users.users[7] = &domain.User{TelegramID: 7, Language: "en"}
	nav := NewStageNavigator(stage.NewService(homeTree(), nil, nil), renderer, users, nil, nil)

	u := &update.Context{UserID: 7, ChatID: 7, HasUser: true, IsCallback: true, Text: "stage:services"}
	require.True(t, nav.CanHandle(ctx, u))

	_, err := nav.Handle(ctx, u)
	require.NoError(t, err)

	calls := rec.Calls()
	require.NotEmpty(t, calls)
	last := calls[len(calls)-1]
	assert.Equal(t, "Services", last.Text)
	// The parent link is synthesized because no button points back to home.
	backRow := last.Inline[len(last.Inline)-1]
	assert.Equal(t, "stage:home", backRow[0].Data)
}

func testCatalog(t *testing.T) *i18n.Manager {
	t.Helper()

	dir := t.TempDir()
	data := []byte("fa:\n  stage:\n    back: \"بازگشت\"\nen:\n  stage:\n    back: \"Back\"\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "catalog.yaml"), data, 0o644))

	mgr, err := i18n.LoadFromDir(dir, "fa")
	require.NoError(t, err)
	return mgr
}

func TestStageNavigatorPrefersStoredLanguage(t *testing.T) {
	ctx := context.Background()
	renderer, rec := newRenderer(t)
	users := newFakeUsers()
	users.users[7] = &domain.User{TelegramID: 7, Language: "fa"}
	nav := NewStageNavigator(stage.NewService(homeTree(), nil, nil), renderer, users, testCatalog(t), nil)

	// The client reports English, the stored profile says Persian.
	u := &update.Context{UserID: 7, ChatID: 7, HasUser: true, IsCallback: true, Text: "stage:home", Language: "en"}
	_, err := nav.Handle(ctx, u)
	require.NoError(t, err)

	assert.Equal(t, "منوی اصلی", rec.LastText())
}

func TestStageNavigatorIgnoresForeignUpdates(t *testing.T) {
	nav := NewStageNavigator(nil, nil, nil, nil, nil)

	assert.False(t, nav.CanHandle(context.Background(), &update.Context{Text: "hello"}))
	assert.False(t, nav.CanHandle(context.Background(), &update.Context{IsCallback: true, Text: "bid:3"}))
}

func TestPreferencesSetLanguage(t *testing.T) {
	ctx := context.Background()
	renderer, rec := newRenderer(t)
	users := newFakeUsers()
	users.users[7] = &domain.User{TelegramID: 7, Language: "fa"}
	prefs := NewPreferences(users, renderer, nil, nil)

	u := &update.Context{UserID: 7, ChatID: 7, HasUser: true, IsCallback: true, Text: "lang:en"}
	require.True(t, prefs.CanHandle(ctx, u))

	handled, err := prefs.Handle(ctx, u)
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, "en", users.languages[7])
	assert.Equal(t, "prefs.language_set", rec.LastText())
}

func TestPreferencesRejectsUnknownLanguage(t *testing.T) {
	ctx := context.Background()
	renderer, rec := newRenderer(t)
	users := newFakeUsers()
	prefs := NewPreferences(users, renderer, nil, nil)

	u := &update.Context{UserID: 7, ChatID: 7, HasUser: true, IsCallback: true, Text: "lang:de"}
	handled, err := prefs.Handle(ctx, u)
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Empty(t, users.languages)
	assert.Empty(t, rec.Calls())
}

func TestPreferencesTogglesCleanChat(t *testing.T) {
	ctx := context.Background()
	renderer, rec := newRenderer(t)
	users := newFakeUsers()
	users.users[7] = &domain.User{TelegramID: 7, Language: "fa"}
	prefs := NewPreferences(users, renderer, nil, nil)

	u := &update.Context{UserID: 7, ChatID: 7, HasUser: true, IsCallback: true, Text: "cleanchat:toggle"}

	_, err := prefs.Handle(ctx, u)
	require.NoError(t, err)
	assert.True(t, users.cleanStates[7])
	assert.Equal(t, "prefs.clean_chat_on", rec.LastText())

	_, err = prefs.Handle(ctx, u)
	require.NoError(t, err)
	assert.False(t, users.cleanStates[7])
	assert.Equal(t, "prefs.clean_chat_off", rec.LastText())
}

func TestFallbackAnswersTextAndSwallowsCallbacks(t *testing.T) {
	ctx := context.Background()
	renderer, rec := newRenderer(t)
	fb := NewFallback(renderer, stage.NewService(homeTree(), nil, nil), nil, nil)

	handled, err := fb.Handle(ctx, &update.Context{UserID: 7, ChatID: 7, HasUser: true, Text: "what"})
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, "errors.unknown_input", rec.LastText())

	rec.Reset()
	handled, err = fb.Handle(ctx, &update.Context{UserID: 7, ChatID: 7, HasUser: true, IsCallback: true, Text: "stale:1"})
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Empty(t, rec.Calls())
}

func TestFallbackRoutesReplyKeyboardLabels(t *testing.T) {
	ctx := context.Background()
	renderer, rec := newRenderer(t)
	fb := NewFallback(renderer, stage.NewService(homeTree(), nil, nil), nil, nil)

	// "Services" is the caption of the home screen's stage button; tapping
	// it on a reply keyboard arrives as plain text.
	handled, err := fb.Handle(ctx, &update.Context{UserID: 7, ChatID: 7, HasUser: true, Text: "Services"})
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, "Services", rec.LastText())

	// The Persian caption of the same button resolves too.
	rec.Reset()
	_, err = fb.Handle(ctx, &update.Context{UserID: 7, ChatID: 7, HasUser: true, Text: "خدمات"})
	require.NoError(t, err)
	assert.NotEqual(t, "errors.unknown_input", rec.LastText())
}

func TestStartErrorPropagatesWhenUpsertFails(t *testing.T) {
	ctx := context.Background()
	renderer, _ := newRenderer(t)
	users := newFakeUsers()
	users.failUpsert = true
	nav := NewStageNavigator(stage.NewService(homeTree(), nil, nil), renderer, users, nil, nil)

	handled, err := nav.Handle(ctx, &update.Context{UserID: 7, ChatID: 7, HasUser: true, Text: "/start"})
	assert.True(t, handled)
	assert.Error(t, err)
}
