package account

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/kuitang/hostdesk/internal/db"
	"github.com/kuitang/hostdesk/internal/email"
	"github.com/kuitang/hostdesk/internal/logutil"
	"github.com/kuitang/hostdesk/internal/metrics"
	"github.com/kuitang/hostdesk/internal/obs"
	"github.com/kuitang/hostdesk/internal/splittoken"
	"github.com/kuitang/hostdesk/internal/urlutil"
)

// Token purposes. One active token per account and purpose.
const (
	PurposePasswordReset = "password_reset"
	PurposeEmailChange   = "email_change"
)

// Link paths carried by the e-mails.
const (
	PasswordResetConfirmPath = "/auth/password/reset/confirm"
	EmailChangeConfirmPath   = "/account/email/confirm"
)

const (
	metaPurpose = "purpose"
	metaEmail   = "email"
)

// RequestPasswordReset e-mails a reset link to the account owning emailAddr.
// Unknown addresses succeed silently so callers cannot probe for accounts.
// A still-active reset token is not re-issued.
func (s *Service) RequestPasswordReset(ctx context.Context, emailAddr string) error {
	addr, err := NormalizeEmail(emailAddr)
	if err != nil {
		return nil
	}
	row, err := s.db.Queries().GetAccountByEmail(ctx, addr)
	if errors.Is(err, sql.ErrNoRows) {
		obs.From(ctx).With("pkg", "account").Debug("password_reset_unknown_email", "email", logutil.MaskEmail(addr))
		return nil
	}
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}

	md := map[string]string{metaPurpose: PurposePasswordReset}
	tok, issued, err := s.issue(ctx, row.ID, PurposePasswordReset, md, s.cfg.ResetTTL)
	if err != nil || !issued {
		return err
	}

	link := urlutil.TokenLink(s.cfg.BaseURL, PasswordResetConfirmPath, tok.Token())
	err = s.email.Send(addr, email.TemplatePasswordReset, email.PasswordResetData{
		Link:      link,
		ExpiresIn: formatTTL(s.cfg.ResetTTL),
	})
	if err != nil {
		s.discard(ctx, tok)
		return fmt.Errorf("send reset email: %w", err)
	}
	return nil
}

// ConfirmPasswordReset sets a new password using a reset token and consumes
// the token. Every token problem yields ErrInvalidToken.
func (s *Service) ConfirmPasswordReset(ctx context.Context, rawToken, newPassword string) error {
	if err := ValidatePasswordStrength(newPassword); err != nil {
		return err
	}
	row, _, err := s.verify(ctx, rawToken, PurposePasswordReset)
	if err != nil {
		return err
	}

	passwordHash, err := s.passwords.Hash([]byte(newPassword))
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	now := s.clock.Now()
	err = s.db.WithTx(ctx, func(q *db.Queries) error {
		n, err := q.DeleteSplitToken(ctx, row.Selector)
		if err != nil {
			return fmt.Errorf("consume token: %w", err)
		}
		if n == 0 {
			// Consumed concurrently.
			return ErrInvalidToken
		}
		n, err = q.UpdateAccountPasswordHash(ctx, db.UpdateAccountPasswordHashParams{
			PasswordHash: passwordHash,
			UpdatedAt:    now.UnixMilli(),
			ID:           row.OwnerID,
		})
		if err != nil {
			return fmt.Errorf("update password hash: %w", err)
		}
		if n == 0 {
			return ErrInvalidToken
		}
		// A new password invalidates every other outstanding token.
		if _, err := q.DeleteSplitTokensByOwner(ctx, row.OwnerID); err != nil {
			return fmt.Errorf("revoke tokens: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	obs.From(obs.WithAccountID(ctx, row.OwnerID)).With("pkg", "account").Info("password_reset_completed")
	return nil
}

// RequestEmailChange re-authenticates the account and e-mails a confirmation
// link to newEmail.
func (s *Service) RequestEmailChange(ctx context.Context, emailAddr, password, newEmail string) error {
	acct, err := s.VerifyLogin(ctx, emailAddr, password)
	if err != nil {
		return err
	}
	target, err := NormalizeEmail(newEmail)
	if err != nil {
		return err
	}
	if target == acct.Email {
		return fmt.Errorf("%w: new address equals the current one", ErrInvalidEmail)
	}
	if _, err := s.db.Queries().GetAccountByEmail(ctx, target); err == nil {
		return ErrEmailTaken
	} else if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("check email: %w", err)
	}

	md := map[string]string{metaPurpose: PurposeEmailChange, metaEmail: target}
	tok, issued, err := s.issue(ctx, acct.ID, PurposeEmailChange, md, s.cfg.EmailChangeTTL)
	if err != nil || !issued {
		return err
	}

	link := urlutil.TokenLink(s.cfg.BaseURL, EmailChangeConfirmPath, tok.Token())
	err = s.email.Send(target, email.TemplateEmailChange, email.EmailChangeData{
		Link:      link,
		NewEmail:  target,
		ExpiresIn: formatTTL(s.cfg.EmailChangeTTL),
	})
	if err != nil {
		s.discard(ctx, tok)
		return fmt.Errorf("send email change email: %w", err)
	}
	return nil
}

// ConfirmEmailChange applies the address stored with the token and consumes it.
func (s *Service) ConfirmEmailChange(ctx context.Context, rawToken string) (*Account, error) {
	row, holder, err := s.verify(ctx, rawToken, PurposeEmailChange)
	if err != nil {
		return nil, err
	}
	target, ok := holder.MetadataValue(metaEmail)
	if !ok || target == "" {
		return nil, ErrInvalidToken
	}

	now := s.clock.Now()
	var updated db.Account
	err = s.db.WithTx(ctx, func(q *db.Queries) error {
		n, err := q.DeleteSplitToken(ctx, row.Selector)
		if err != nil {
			return fmt.Errorf("consume token: %w", err)
		}
		if n == 0 {
			return ErrInvalidToken
		}
		_, err = q.UpdateAccountEmail(ctx, db.UpdateAccountEmailParams{
			Email:     target,
			UpdatedAt: now.UnixMilli(),
			ID:        row.OwnerID,
		})
		if db.IsUniqueViolation(err) {
			return ErrEmailTaken
		}
		if err != nil {
			return fmt.Errorf("update email: %w", err)
		}
		updated, err = q.GetAccountByID(ctx, row.OwnerID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrInvalidToken
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	obs.From(obs.WithAccountID(ctx, row.OwnerID)).With("pkg", "account").
		Info("email_change_completed", "email", logutil.MaskEmail(target))
	return accountFromRow(updated), nil
}

// issue generates and stores a token for ownerID unless an identical active
// one exists. issued is false when the existing token was kept.
func (s *Service) issue(ctx context.Context, ownerID, purpose string, md map[string]string, ttl time.Duration) (*splittoken.SplitToken, bool, error) {
	logger := obs.From(obs.WithAccountID(ctx, ownerID)).With("pkg", "account")
	q := s.db.Queries()
	now := s.clock.Now()

	current, err := q.GetSplitTokenByOwner(ctx, db.GetSplitTokenByOwnerParams{OwnerID: ownerID, Purpose: purpose})
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, false, fmt.Errorf("get current token: %w", err)
	default:
		holder, err := holderFromRow(current)
		if err != nil {
			return nil, false, err
		}
		if !splittoken.MayReplace(holder, md, now) {
			logger.Info("token_still_active", "purpose", purpose)
			return nil, false, nil
		}
	}

	tok, err := s.tokens.GenerateWithTTL(ownerID, ttl)
	if err != nil {
		return nil, false, fmt.Errorf("generate token: %w", err)
	}
	holder, err := tok.ToValueHolder(splittoken.WithMetadata(md))
	if err != nil {
		return nil, false, fmt.Errorf("value holder: %w", err)
	}
	params, err := upsertParams(holder, ownerID, purpose, now)
	if err != nil {
		return nil, false, err
	}
	if err := q.UpsertSplitToken(ctx, params); err != nil {
		return nil, false, fmt.Errorf("store token: %w", err)
	}

	metrics.RecordTokenIssued(purpose)
	logger.Info("token_issued", "purpose", purpose, "token", tok)
	return tok, true, nil
}

// discard deletes a token whose e-mail never went out, so the next request
// issues a fresh one instead of finding it still active.
func (s *Service) discard(ctx context.Context, tok *splittoken.SplitToken) {
	if _, err := s.db.Queries().DeleteSplitToken(ctx, tok.Selector()); err != nil {
		obs.From(ctx).With("pkg", "account").Warn("undelivered_token_delete_failed", "token", tok, "error", err)
	}
}

// verify resolves rawToken to its stored row and checks purpose, expiry and
// the verifier. All failures are reported as ErrInvalidToken.
func (s *Service) verify(ctx context.Context, rawToken, purpose string) (db.SplitToken, *splittoken.ValueHolder, error) {
	logger := obs.From(ctx).With("pkg", "account")
	fail := func(result string) (db.SplitToken, *splittoken.ValueHolder, error) {
		metrics.RecordTokenVerification(purpose, result)
		logger.Info("token_rejected", "purpose", purpose, "result", result)
		return db.SplitToken{}, nil, ErrInvalidToken
	}

	tok, err := s.tokens.FromString(strings.TrimSpace(rawToken))
	if err != nil {
		return fail(metrics.ResultMalformed)
	}

	q := s.db.Queries()
	row, err := q.GetSplitTokenBySelector(ctx, tok.Selector())
	if errors.Is(err, sql.ErrNoRows) {
		return fail(metrics.ResultUnknown)
	}
	if err != nil {
		return db.SplitToken{}, nil, fmt.Errorf("get token: %w", err)
	}
	if row.Purpose != purpose {
		return fail(metrics.ResultMismatch)
	}

	holder, err := holderFromRow(row)
	if err != nil {
		return db.SplitToken{}, nil, err
	}
	if got, _ := holder.MetadataValue(metaPurpose); got != purpose {
		return fail(metrics.ResultMismatch)
	}
	if !tok.MatchesHolder(holder, row.OwnerID) {
		return fail(metrics.ResultMismatch)
	}
	// Only a holder of the full token may delete the expired row.
	if holder.IsExpired(s.clock.Now()) {
		if _, err := q.DeleteSplitToken(ctx, row.Selector); err != nil {
			logger.Warn("expired_token_delete_failed", "error", err)
		}
		return fail(metrics.ResultExpired)
	}

	metrics.RecordTokenVerification(purpose, metrics.ResultValid)
	return row, holder, nil
}

func holderFromRow(row db.SplitToken) (*splittoken.ValueHolder, error) {
	h := &splittoken.ValueHolder{
		Selector:     row.Selector,
		VerifierHash: row.VerifierHash,
	}
	if row.ExpiresAt.Valid {
		at := time.UnixMilli(row.ExpiresAt.Int64)
		h.ExpiresAt = &at
	}
	if row.Metadata != "" {
		if err := json.Unmarshal([]byte(row.Metadata), &h.Metadata); err != nil {
			return nil, fmt.Errorf("decode token metadata: %w", err)
		}
	}
	return h, nil
}

func upsertParams(h *splittoken.ValueHolder, ownerID, purpose string, now time.Time) (db.UpsertSplitTokenParams, error) {
	md := h.Metadata
	if md == nil {
		md = map[string]string{}
	}
	mdJSON, err := json.Marshal(md)
	if err != nil {
		return db.UpsertSplitTokenParams{}, fmt.Errorf("encode token metadata: %w", err)
	}
	p := db.UpsertSplitTokenParams{
		Selector:     h.Selector,
		OwnerID:      ownerID,
		Purpose:      purpose,
		VerifierHash: h.VerifierHash,
		Metadata:     string(mdJSON),
		CreatedAt:    now.UnixMilli(),
	}
	if h.ExpiresAt != nil {
		p.ExpiresAt = sql.NullInt64{Int64: h.ExpiresAt.UnixMilli(), Valid: true}
	}
	return p, nil
}

// formatTTL renders a lifetime for e-mail copy, e.g. "1 hour".
func formatTTL(ttl time.Duration) string {
	now := time.Now()
	return strings.TrimSpace(humanize.RelTime(now, now.Add(ttl), "", ""))
}
