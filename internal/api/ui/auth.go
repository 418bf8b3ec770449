package ui

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/yu-fu/smokesearch/internal/auth"
	"github.com/yu-fu/smokesearch/internal/forms"
	"github.com/yu-fu/smokesearch/internal/humastar"
)

// signInFunc creates a session for browserID.
type signInFunc func(humaCtx huma.Context, browserID string) (auth.Session, error)

// signIn runs a session-creating form. On success the session cookie is
// set and the browser goes home; otherwise the message is shown inline.
func (h *Handler) signIn(ctx context.Context, in *Input, build func(r *request) (forms.Validator, signInFunc)) (*huma.StreamResponse, error) {
	r, err := h.decode(ctx, in)
	if err != nil {
		return nil, err
	}
	form, run := build(r)
	return h.StreamRaw(func(humaCtx huma.Context, start func() humastar.SSE) {
		bid := h.browserID(humaCtx, r.cookies)

		var s auth.Session
		errs, err := forms.Submit(form, func() error {
			var err error
			s, err = run(humaCtx, bid)
			return err
		})
		if errs.OK() && err == nil {
			h.startSession(humaCtx, s)
		}

		sse := start()
		switch {
		case !errs.OK():
			sse.Error(r.t(h, errs.First()))
		case err != nil:
			sse.Error(h.authMessage(r, err))
		default:
			sse.Signals(map[string]any{"password": "", "confirm": "", "error": ""})
			sse.Redirect(r.href("/"))
		}
	}), nil
}

// SignUp creates an account. Mismatched passwords never reach the provider.
func (h *Handler) SignUp(ctx context.Context, in *Input) (*huma.StreamResponse, error) {
	return h.signIn(ctx, in, func(r *request) (forms.Validator, signInFunc) {
		form := forms.SignUp{Email: r.sig.Email, Password: r.sig.Password, ConfirmPassword: r.sig.Confirm}
		return form, func(_ huma.Context, bid string) (auth.Session, error) {
			return h.Auth.SignUp(r.ctx, bid, form.Email, form.Password)
		}
	})
}

// Login signs in with email and password.
func (h *Handler) Login(ctx context.Context, in *Input) (*huma.StreamResponse, error) {
	return h.signIn(ctx, in, func(r *request) (forms.Validator, signInFunc) {
		form := forms.Login{Email: r.sig.Email, Password: r.sig.Password}
		return form, func(_ huma.Context, bid string) (auth.Session, error) {
			return h.Auth.SignIn(r.ctx, bid, form.Email, form.Password)
		}
	})
}

// noForm is a form without fields.
type noForm struct{}

func (noForm) Validate() forms.Errors { return nil }

// Federated signs in with the identity asserted by the trusted proxy.
func (h *Handler) Federated(ctx context.Context, in *Input) (*huma.StreamResponse, error) {
	return h.signIn(ctx, in, func(r *request) (forms.Validator, signInFunc) {
		return noForm{}, func(humaCtx huma.Context, bid string) (auth.Session, error) {
			id, err := h.Verifier.Verify(humastar.Request(humaCtx))
			if err != nil {
				return auth.Session{}, err
			}
			return h.Auth.SignInFederated(r.ctx, bid, id)
		}
	})
}

// SendReset mails a password reset link.
func (h *Handler) SendReset(ctx context.Context, in *Input) (*huma.StreamResponse, error) {
	r, err := h.decode(ctx, in)
	if err != nil {
		return nil, err
	}
	return h.Stream(func(sse humastar.SSE) {
		form := forms.PasswordReset{Email: r.sig.ResetEmail}
		errs, err := forms.Submit(form, func() error {
			return h.Auth.SendPasswordReset(r.ctx, form.Email)
		})
		switch {
		case !errs.OK():
			sse.Error(r.t(h, errs.First()))
		case err != nil:
			sse.Error(h.authMessage(r, err))
		default:
			sse.Success(r.t(h, "auth.reset_email_sent"))
			sse.Signals(map[string]any{"resetemail": ""})
		}
	}), nil
}

// ConfirmReset sets a new password with the mailed code.
func (h *Handler) ConfirmReset(ctx context.Context, in *Input) (*huma.StreamResponse, error) {
	r, err := h.decode(ctx, in)
	if err != nil {
		return nil, err
	}
	return h.Stream(func(sse humastar.SSE) {
		form := forms.NewPassword{Code: r.sig.Code, Password: r.sig.Password, ConfirmPassword: r.sig.Confirm}
		errs, err := forms.Submit(form, func() error {
			return h.Auth.ConfirmPasswordReset(r.ctx, form.Code, form.Password)
		})
		switch {
		case !errs.OK():
			sse.Error(r.t(h, errs.First()))
		case err != nil:
			sse.Error(h.authMessage(r, err))
		default:
			sse.Success(r.t(h, "auth.password_updated"))
			sse.Signals(map[string]any{"password": "", "confirm": "", "code": ""})
		}
	}), nil
}

// Logout ends the session and goes home.
func (h *Handler) Logout(ctx context.Context, in *Input) (*huma.StreamResponse, error) {
	r, err := h.decode(ctx, in)
	if err != nil {
		return nil, err
	}
	return h.StreamRaw(func(humaCtx huma.Context, start func() humastar.SSE) {
		err := h.Auth.SignOut(r.ctx, r.cookies.Session)
		if err == nil {
			h.clearSession(humaCtx)
		}
		sse := start()
		if err != nil {
			sse.Error(h.authMessage(r, err))
			return
		}
		sse.Redirect(r.href("/"))
	}), nil
}

// SettingsReset mails a reset link to the signed-in user.
func (h *Handler) SettingsReset(ctx context.Context, in *Input) (*huma.StreamResponse, error) {
	r, err := h.decode(ctx, in)
	if err != nil {
		return nil, err
	}
	return h.Stream(func(sse humastar.SSE) {
		u, err := h.Auth.Current(r.ctx, r.cookies.Session)
		if err != nil || u == nil {
			sse.Error(r.t(h, "auth.login_required"))
			return
		}
		if err := h.Auth.SendPasswordReset(r.ctx, u.Email); err != nil {
			sse.Error(h.authMessage(r, err))
			return
		}
		sse.Success(r.t(h, "auth.reset_email_sent"))
	}), nil
}

// SettingsDelete deletes the account of the signed-in user. A stale
// session is signed out and sent to the login page to authenticate again.
func (h *Handler) SettingsDelete(ctx context.Context, in *Input) (*huma.StreamResponse, error) {
	r, err := h.decode(ctx, in)
	if err != nil {
		return nil, err
	}
	return h.StreamRaw(func(humaCtx huma.Context, start func() humastar.SSE) {
		err := h.Auth.DeleteAccount(r.ctx, r.cookies.Session)
		switch {
		case err == nil:
			h.clearSession(humaCtx)
			start().Redirect(r.href("/"))

		case errors.Is(err, auth.ErrNoSession):
			h.clearSession(humaCtx)
			start().Redirect(r.href("/login"))

		case auth.IsRequiresRecentLogin(err):
			if err := h.Auth.SignOut(r.ctx, r.cookies.Session); err != nil {
				sse := start()
				sse.Error(h.authMessage(r, err))
				return
			}
			h.clearSession(humaCtx)
			start().Redirect(r.href("/login") + "?reauth=1")

		default:
			var ae *auth.Error
			msg := r.t(h, "error.delete_account_failed")
			if errors.As(err, &ae) && ae.Code != "" {
				msg = ae.Message
			}
			start().Error(msg)
		}
	}), nil
}
