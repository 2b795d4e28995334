package bid

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/qsmarket/market-bot/internal/domain"
	"github.com/qsmarket/market-bot/internal/i18n"
	"github.com/qsmarket/market-bot/internal/render"
	"github.com/qsmarket/market-bot/internal/repository"
	"github.com/qsmarket/market-bot/internal/update"
)

const (
	acceptPrefix = "bid_accept:"
	rejectPrefix = "bid_reject:"
)

// Resolver is the persistence surface for resolving bids. Satisfied by
// repository.Bids.
type Resolver interface {
	Accept(ctx context.Context, bidID, ownerTelegramID int64) (*repository.AcceptResult, error)
	Reject(ctx context.Context, bidID, ownerTelegramID int64) (*domain.Bid, error)
}

// Resolution handles the listing owner's accept/reject taps on incoming bids.
type Resolution struct {
	bids     Resolver
	renderer *render.Renderer
	i18n     *i18n.Manager
	notifier Notifier
	log      *slog.Logger
}

// NewResolution builds the resolution handler.
func NewResolution(bids Resolver, renderer *render.Renderer, mgr *i18n.Manager, notifier Notifier, log *slog.Logger) *Resolution {
	if log == nil {
		log = slog.Default()
	}

	return &Resolution{bids: bids, renderer: renderer, i18n: mgr, notifier: notifier, log: log}
}

func (r *Resolution) Name() string { return "bid_resolution" }

func (r *Resolution) CanHandle(_ context.Context, u *update.Context) bool {
	if !u.IsCallback {
		return false
	}
	return strings.HasPrefix(u.Text, acceptPrefix) || strings.HasPrefix(u.Text, rejectPrefix)
}

func (r *Resolution) Handle(ctx context.Context, u *update.Context) (bool, error) {
	tr := r.i18n.Translator(u.Language)

	if strings.HasPrefix(u.Text, acceptPrefix) {
		return true, r.accept(ctx, u, tr, strings.TrimPrefix(u.Text, acceptPrefix))
	}
	return true, r.reject(ctx, u, tr, strings.TrimPrefix(u.Text, rejectPrefix))
}

func (r *Resolution) accept(ctx context.Context, u *update.Context, tr i18n.Translator, rawID string) error {
	bidID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return nil
	}

	result, err := r.bids.Accept(ctx, bidID, u.UserID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound), errors.Is(err, repository.ErrAlreadyResolved):
			return r.show(ctx, u, tr.T("bid.already_resolved"))
		case errors.Is(err, repository.ErrNotOwner):
			return r.show(ctx, u, tr.T("bid.not_owner"))
		default:
			return err
		}
	}

	// Notifications go out only after the transaction committed. Each is
	// best-effort and independent of the others.
	r.notifier.Send(ctx, result.Winner.BidderTelegramID,
		tr.Tf("bid.accepted_notice", result.Request.RequestNumber))
	for _, loser := range result.LosingBidders {
		r.notifier.Send(ctx, loser, tr.Tf("bid.rejected_notice", result.Request.RequestNumber))
	}

	return r.show(ctx, u, tr.Tf("bid.accept_done", result.Winner.BidderDisplayName))
}

func (r *Resolution) reject(ctx context.Context, u *update.Context, tr i18n.Translator, rawID string) error {
	bidID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return nil
	}

	bid, err := r.bids.Reject(ctx, bidID, u.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyResolved) {
			return r.show(ctx, u, tr.T("bid.already_resolved"))
		}
		return err
	}

	r.notifier.Send(ctx, bid.BidderTelegramID, tr.T("bid.rejected_notice_single"))
	return r.show(ctx, u, tr.T("bid.reject_done"))
}

func (r *Resolution) show(ctx context.Context, u *update.Context, text string) error {
	return r.renderer.Show(ctx, u.ChatID, u.UserID, render.TextScreen(text))
}
