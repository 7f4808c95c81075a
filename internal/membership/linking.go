package membership

import (
	"context"
	"errors"
	"strings"

	"github.com/diewo77/go-members/internal/apperr"
	"github.com/diewo77/go-members/internal/events"
	"github.com/diewo77/go-members/internal/store"
	"github.com/diewo77/go-members/internal/validation"
)

const opLinkAccount = "link_account"

const welcomeText = "Your account is linked. Welcome to the membership! " +
	"Check in at any store from the member menu."

// LinkResult is returned on success.
type LinkResult struct {
	UserID        uint `json:"user_id"`
	AlreadyLinked bool `json:"already_linked"`
}

// Linking binds a messaging identity to an existing account.
type Linking struct {
	core
}

// NewLinking returns the linking workflow.
func NewLinking(d Deps) *Linking {
	return &Linking{core: newCore(d)}
}

// LinkAccount binds externalID to the account registered with email.
// Linking the same pair again succeeds without side effects; an account
// bound to another identity, or an identity bound to another account, is a
// conflict. After a new binding the member menu and a welcome message are
// sent best-effort.
func (l *Linking) LinkAccount(ctx context.Context, email, externalID string) (res LinkResult, err error) {
	started := l.now()
	email = normalizeEmail(email)
	externalID = strings.TrimSpace(externalID)
	defer func() {
		l.finish(ctx, opLinkAccount, started, err, "subject", externalID, "email", email)
	}()

	v := make(validation.Violations)
	validation.Required("email", email, v)
	validation.Required("external_identity_id", externalID, v)
	if !v.Empty() {
		return res, apperr.Validation(opLinkAccount, "invalid link request", v)
	}

	u, err := l.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return res, apperr.NotFound(opLinkAccount, "no account registered with this email")
		}
		return res, apperr.Storage(opLinkAccount, err)
	}
	if u.IsLinked() {
		if u.LinkedTo(externalID) {
			return LinkResult{UserID: u.ID, AlreadyLinked: true}, nil
		}
		return res, apperr.Conflict(opLinkAccount, "account already linked to another identity")
	}

	u.ExternalIdentityID = &externalID
	if err := l.store.UpdateUser(ctx, u); err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicate):
			return res, apperr.Conflict(opLinkAccount, "identity already linked to another account")
		case errors.Is(err, store.ErrNotFound):
			return res, apperr.NotFound(opLinkAccount, "no account registered with this email")
		}
		return res, apperr.Storage(opLinkAccount, err)
	}

	ctx = context.WithoutCancel(ctx)
	l.notifier.SetChannelMenu(ctx, externalID, l.menuID)
	l.notifier.Send(ctx, externalID, welcomeText)
	l.publish(ctx, events.Event{Type: events.MemberLinked, SubjectID: externalID, UserID: u.ID})
	return LinkResult{UserID: u.ID}, nil
}
