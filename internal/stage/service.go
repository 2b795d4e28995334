// Package stage renders admin-authored screens. A stage is bilingual text
// plus a grid of buttons stored in the database; the service resolves the
// user's language, filters by permission, lays out the grid, and produces a
// screen for the choreographer.
package stage

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"github.com/qsmarket/market-bot/internal/domain"
	"github.com/qsmarket/market-bot/internal/i18n"
	"github.com/qsmarket/market-bot/internal/render"
	"github.com/qsmarket/market-bot/internal/responder"
)

// CallbackPrefix marks callback payloads that navigate to another stage.
const CallbackPrefix = "stage:"

// ErrNotFound indicates no stage exists for the key.
var ErrNotFound = errors.New("stage not found")

// Repository reads stages and their buttons.
type Repository interface {
	Stage(ctx context.Context, key string) (*domain.Stage, error)
	Buttons(ctx context.Context, stageKey string) ([]*domain.StageButton, error)
	ButtonByLabel(ctx context.Context, label string) (*domain.StageButton, error)
}

// PermissionChecker reports whether a user holds a named permission.
type PermissionChecker interface {
	HasPermission(ctx context.Context, telegramID int64, permission string) (bool, error)
}

// Service renders stages into screens.
type Service struct {
	repo  Repository
	perms PermissionChecker
	log   *slog.Logger
}

// NewService builds a stage Service.
func NewService(repo Repository, perms PermissionChecker, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}

	return &Service{repo: repo, perms: perms, log: log}
}

// CallbackData builds the navigation payload for a stage key.
func CallbackData(key string) string {
	return CallbackPrefix + key
}

// KeyFromCallback extracts the stage key from a navigation payload, or ""
// when the payload is not a stage link.
func KeyFromCallback(data string) string {
	if !strings.HasPrefix(data, CallbackPrefix) {
		return ""
	}
	return strings.TrimPrefix(data, CallbackPrefix)
}

// Render resolves a stage into a screen for the user. A missing or disabled
// stage renders the localized "not available" notice; a stage the user lacks
// the permission for renders a distinct access-denied notice so the user
// knows the section exists but is closed to them.
func (s *Service) Render(ctx context.Context, userID int64, tr i18n.Translator, key string) (render.Screen, error) {
	st, err := s.repo.Stage(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return render.TextScreen(tr.T("stage.not_available")), nil
		}
		return render.Screen{}, err
	}

	if !st.Enabled {
		return render.TextScreen(tr.T("stage.not_available")), nil
	}

	if st.RequiredPermission != "" {
		allowed, err := s.allowed(ctx, userID, st.RequiredPermission)
		if err != nil {
			return render.Screen{}, err
		}
		if !allowed {
			return render.TextScreen(tr.T("stage.access_denied")), nil
		}
	}

	buttons, err := s.repo.Buttons(ctx, key)
	if err != nil {
		return render.Screen{}, err
	}

	visible, err := s.filter(ctx, userID, buttons)
	if err != nil {
		return render.Screen{}, err
	}

	text := localized(tr.Lang(), st.TextFa, st.TextEn)

	if st.ReplyKeyboard {
		return render.ReplyScreen(text, replyGrid(tr.Lang(), visible)), nil
	}

	grid := inlineGrid(tr.Lang(), visible)
	if st.ParentKey != "" && !linksTo(visible, st.ParentKey) {
		grid = append(grid, []responder.Button{{
			Text: tr.T("stage.back"),
			Data: CallbackData(st.ParentKey),
		}})
	}

	if len(grid) == 0 {
		return render.TextScreen(text), nil
	}
	return render.InlineScreen(text, grid), nil
}

// ResolveLabel maps a tapped reply-keyboard caption onto its target stage.
// The bool reports whether the label matched a navigable button; URL and
// plain callback buttons do not resolve, their payloads ride in the tap
// itself on inline screens.
func (s *Service) ResolveLabel(ctx context.Context, userID int64, tr i18n.Translator, label string) (render.Screen, bool, error) {
	btn, err := s.repo.ButtonByLabel(ctx, label)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return render.Screen{}, false, nil
		}
		return render.Screen{}, false, err
	}

	if btn.ButtonType != domain.ButtonTypeStage || btn.TargetStageKey == "" {
		return render.Screen{}, false, nil
	}

	if btn.RequiredPermission != "" {
		allowed, err := s.allowed(ctx, userID, btn.RequiredPermission)
		if err != nil {
			return render.Screen{}, false, err
		}
		if !allowed {
			return render.TextScreen(tr.T("stage.access_denied")), true, nil
		}
	}

	screen, err := s.Render(ctx, userID, tr, btn.TargetStageKey)
	if err != nil {
		return render.Screen{}, false, err
	}
	return screen, true, nil
}

func (s *Service) allowed(ctx context.Context, userID int64, permission string) (bool, error) {
	if s.perms == nil {
		return false, nil
	}
	return s.perms.HasPermission(ctx, userID, permission)
}

func (s *Service) filter(ctx context.Context, userID int64, buttons []*domain.StageButton) ([]*domain.StageButton, error) {
	visible := make([]*domain.StageButton, 0, len(buttons))
	for _, b := range buttons {
		if b == nil || !b.Enabled {
			continue
		}
		if b.RequiredPermission != "" {
			allowed, err := s.allowed(ctx, userID, b.RequiredPermission)
			if err != nil {
				return nil, err
			}
			if !allowed {
				continue
			}
		}
		visible = append(visible, b)
	}
	return visible, nil
}

func linksTo(buttons []*domain.StageButton, stageKey string) bool {
	for _, b := range buttons {
		if b.ButtonType == domain.ButtonTypeStage && b.TargetStageKey == stageKey {
			return true
		}
	}
	return false
}

// inlineGrid lays buttons out by their stored row and column coordinates.
// Gaps in the numbering collapse; ordering is what matters.
func inlineGrid(lang string, buttons []*domain.StageButton) [][]responder.Button {
	sorted := make([]*domain.StageButton, len(buttons))
	copy(sorted, buttons)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Row != sorted[j].Row {
			return sorted[i].Row < sorted[j].Row
		}
		return sorted[i].Column < sorted[j].Column
	})

	var (
		grid    [][]responder.Button
		current []responder.Button
		lastRow = -1
	)
	for _, b := range sorted {
		if b.Row != lastRow {
			if len(current) > 0 {
				grid = append(grid, current)
			}
			current = nil
			lastRow = b.Row
		}
		current = append(current, toButton(lang, b))
	}
	if len(current) > 0 {
		grid = append(grid, current)
	}
	return grid
}

func replyGrid(lang string, buttons []*domain.StageButton) [][]string {
	inline := inlineGrid(lang, buttons)
	grid := make([][]string, 0, len(inline))
	for _, row := range inline {
		labels := make([]string, 0, len(row))
		for _, b := range row {
			labels = append(labels, b.Text)
		}
		grid = append(grid, labels)
	}
	return grid
}

func toButton(lang string, b *domain.StageButton) responder.Button {
	btn := responder.Button{Text: localized(lang, b.TextFa, b.TextEn)}

	switch b.ButtonType {
	case domain.ButtonTypeStage:
		btn.Data = CallbackData(b.TargetStageKey)
	case domain.ButtonTypeURL:
		btn.URL = b.URL
	default:
		btn.Data = b.CallbackData
	}
	return btn
}

// localized picks the text for the user's language, falling back to the
// other language when the preferred one is blank.
func localized(lang, fa, en string) string {
	if lang == i18n.LangFa {
		if fa != "" {
			return fa
		}
		return en
	}
	if en != "" {
		return en
	}
	return fa
}
