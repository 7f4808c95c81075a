package membership

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/diewo77/go-members/internal/apperr"
	"github.com/diewo77/go-members/internal/events"
	"github.com/diewo77/go-members/internal/models"
	"github.com/diewo77/go-members/internal/payment"
	"github.com/diewo77/go-members/internal/store"
	"github.com/diewo77/go-members/internal/validation"
)

const opRegister = "register"

const completeLinkingText = "Thanks for joining! Your membership is almost ready. " +
	"Open the member menu and tap \"Link account\" to finish."

// RegistrationPayload is the sign-up form.
type RegistrationPayload struct {
	Email     string       `json:"email" validate:"required,email,max=255"`
	Phone     string       `json:"phone,omitempty" validate:"omitempty,max=50"`
	Gender    string       `json:"gender,omitempty" validate:"omitempty,oneof=male female other"`
	BirthDate string       `json:"birth_date" validate:"required,datetime=2006-01-02"`
	Profile   ProfileInput `json:"profile" validate:"required"`
	Survey    SurveyInput  `json:"survey" validate:"required"`
}

// ProfileInput is the professional background section of the form.
type ProfileInput struct {
	Industry        string `json:"industry" validate:"required,max=100"`
	JobType         string `json:"job_type" validate:"required,max=100"`
	ExperienceYears int    `json:"experience_years" validate:"gte=0,lte=80"`
}

// SurveyInput is the onboarding questionnaire section of the form.
type SurveyInput struct {
	Interests         []string `json:"interests" validate:"required,min=1,max=20,dive,required,max=100"`
	SideJobInterest   string   `json:"side_job_interest" validate:"required,max=50"`
	MeetingPreference string   `json:"meeting_preference" validate:"required,max=50"`
}

// RegisterInput carries the identity assertion and the form.
type RegisterInput struct {
	IDToken string
	Survey  RegistrationPayload
}

// RegisterResult is returned on success.
type RegisterResult struct {
	PaymentCustomerID string `json:"payment_customer_id"`
	UserID            uint   `json:"user_id"`
}

// Registration onboards new members.
type Registration struct {
	core
}

// NewRegistration returns the onboarding workflow.
func NewRegistration(d Deps) *Registration {
	return &Registration{core: newCore(d)}
}

// Register verifies the caller, validates the form, creates the payment
// customer and persists the member. Steps before the payment customer is
// created have no side effects. After it, the call ignores cancellation and
// any failure leaves an orphaned customer that is logged and published as
// member.registration_incomplete.
func (r *Registration) Register(ctx context.Context, in RegisterInput) (res RegisterResult, err error) {
	started := r.now()
	var subject string
	p := normalizePayload(in.Survey)
	defer func() {
		r.finish(ctx, opRegister, started, err, "subject", subject, "email", p.Email)
	}()

	claims, err := r.identity.Verify(ctx, in.IDToken)
	if err != nil {
		return res, apperr.Auth(opRegister, err)
	}
	subject = claims.Subject

	v := make(validation.Violations)
	validation.Struct(p, v)
	if !v.Empty() {
		return res, apperr.Validation(opRegister, "invalid registration payload", v)
	}
	birth, err := time.Parse(time.DateOnly, p.BirthDate)
	if err != nil {
		return res, apperr.Validation(opRegister, "invalid registration payload", validation.Violations{"birth_date": "invalid_date"})
	}

	if err := r.ensureAvailable(ctx, p.Email, subject); err != nil {
		return res, err
	}

	cust, err := r.payments.CreateCustomer(ctx, payment.CustomerRequest{
		Email:     p.Email,
		Name:      claims.Name,
		SubjectID: subject,
	})
	if err != nil {
		return res, apperr.Payment(opRegister, err)
	}

	// The customer exists: from here on, run to completion.
	ctx = context.WithoutCancel(ctx)

	user := &models.User{
		Email:              p.Email,
		Phone:              optional(p.Phone),
		Gender:             optional(p.Gender),
		BirthDate:          datatypes.Date(birth),
		DisplayName:        claims.Name,
		PictureURL:         claims.Picture,
		ExternalIdentityID: &subject,
		PaymentCustomerID:  &cust.ID,
	}
	if err := r.store.CreateUser(ctx, user); err != nil {
		r.incomplete(ctx, cust.ID, subject, 0, "user", err)
		if errors.Is(err, store.ErrDuplicate) {
			return res, apperr.Conflict(opRegister, "email or identity already registered")
		}
		return res, apperr.Storage(opRegister, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.store.CreateProfile(gctx, &models.UserProfile{
			UserID:          user.ID,
			Industry:        p.Profile.Industry,
			JobType:         p.Profile.JobType,
			ExperienceYears: p.Profile.ExperienceYears,
		})
	})
	g.Go(func() error {
		return r.store.CreateSurvey(gctx, &models.Survey{
			UserID:            user.ID,
			Interests:         datatypes.JSONSlice[string](p.Survey.Interests),
			SideJobInterest:   p.Survey.SideJobInterest,
			MeetingPreference: p.Survey.MeetingPreference,
		})
	})
	if err := g.Wait(); err != nil {
		r.incomplete(ctx, cust.ID, subject, user.ID, "profile_survey", err)
		return res, apperr.Storage(opRegister, err)
	}

	r.notifier.Send(ctx, subject, completeLinkingText)
	r.publish(ctx, events.Event{
		Type:      events.MemberRegistered,
		SubjectID: subject,
		UserID:    user.ID,
		Data:      map[string]any{"payment_customer_id": cust.ID},
	})
	return RegisterResult{PaymentCustomerID: cust.ID, UserID: user.ID}, nil
}

// ensureAvailable rejects a taken email or identity before any side effect.
// The store's unique indexes remain the authority under races.
func (r *Registration) ensureAvailable(ctx context.Context, email, subject string) error {
	if _, err := r.store.GetUserByEmail(ctx, email); err == nil {
		return apperr.Conflict(opRegister, "email already registered")
	} else if !errors.Is(err, store.ErrNotFound) {
		return apperr.Storage(opRegister, err)
	}
	if _, err := r.store.GetUserByExternalID(ctx, subject); err == nil {
		return apperr.Conflict(opRegister, "identity already linked to another account")
	} else if !errors.Is(err, store.ErrNotFound) {
		return apperr.Storage(opRegister, err)
	}
	return nil
}

func (r *Registration) incomplete(ctx context.Context, customerID, subject string, userID uint, stage string, cause error) {
	r.log.ErrorContext(ctx, "registration incomplete, payment customer needs reconciliation",
		"payment_customer_id", customerID, "subject", subject, "user_id", userID, "stage", stage, "error", cause)
	r.publish(ctx, events.Event{
		Type:      events.MemberRegistrationIncomplete,
		SubjectID: subject,
		UserID:    userID,
		Data: map[string]any{
			"payment_customer_id": customerID,
			"stage":               stage,
			"error":               cause.Error(),
		},
	})
}

func normalizePayload(p RegistrationPayload) RegistrationPayload {
	p.Email = normalizeEmail(p.Email)
	p.Phone = strings.TrimSpace(p.Phone)
	p.Gender = strings.ToLower(strings.TrimSpace(p.Gender))
	p.BirthDate = strings.TrimSpace(p.BirthDate)
	p.Profile.Industry = strings.TrimSpace(p.Profile.Industry)
	p.Profile.JobType = strings.TrimSpace(p.Profile.JobType)
	p.Survey.SideJobInterest = strings.TrimSpace(p.Survey.SideJobInterest)
	p.Survey.MeetingPreference = strings.TrimSpace(p.Survey.MeetingPreference)
	if len(p.Survey.Interests) > 0 {
		interests := make([]string, len(p.Survey.Interests))
		for i, s := range p.Survey.Interests {
			interests[i] = strings.TrimSpace(s)
		}
		p.Survey.Interests = interests
	}
	return p
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
