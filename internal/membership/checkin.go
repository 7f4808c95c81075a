package membership

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/diewo77/go-members/internal/apperr"
	"github.com/diewo77/go-members/internal/events"
	"github.com/diewo77/go-members/internal/models"
	"github.com/diewo77/go-members/internal/store"
	"github.com/diewo77/go-members/internal/validation"
)

const (
	opCheckIn      = "check_in"
	opSubmitSurvey = "submit_visit_survey"
)

// CheckInResult is returned on a successful check-in.
type CheckInResult struct {
	VisitID   string    `json:"visit_id"`
	CheckInAt time.Time `json:"check_in_at"`
}

// SubmitSurveyInput is the post-visit questionnaire. ExternalIdentityID, when
// set, restricts the submission to the caller's own visits.
type SubmitSurveyInput struct {
	VisitID             string   `json:"-"`
	ExternalIdentityID  string   `json:"-"`
	VisitType           string   `json:"visit_type" validate:"required"`
	VisitPurpose        string   `json:"visit_purpose,omitempty" validate:"max=255"`
	CompanionIndustries []string `json:"companion_industries,omitempty" validate:"max=20,dive,max=100"`
	CompanionJobTypes   []string `json:"companion_job_types,omitempty" validate:"max=20,dive,max=100"`
}

// SubmitSurveyResult is returned on success.
type SubmitSurveyResult struct {
	VisitID string `json:"visit_id"`
}

// CheckIn runs the visit lifecycle: checked in, then surveyed.
type CheckIn struct {
	core
}

// NewCheckIn returns the check-in workflow.
func NewCheckIn(d Deps) *CheckIn {
	return &CheckIn{core: newCore(d)}
}

// CheckIn records a visit of the member at the store. A repeat check-in at
// the same store inside the configured window is a conflict.
func (c *CheckIn) CheckIn(ctx context.Context, externalID, storeID string) (res CheckInResult, err error) {
	started := c.now()
	externalID = strings.TrimSpace(externalID)
	storeID = strings.TrimSpace(storeID)
	defer func() {
		c.finish(ctx, opCheckIn, started, err, "subject", externalID, "store_id", storeID)
	}()

	user, err := c.store.GetUserByExternalID(ctx, externalID)
	if err != nil {
		return res, notFoundOr(opCheckIn, "member not found", err)
	}
	st, err := c.store.GetStoreByID(ctx, storeID)
	if err != nil {
		return res, notFoundOr(opCheckIn, "store not found", err)
	}

	v := models.NewVisit(c.newID(), user.ID, st.ID, c.now().UTC())
	if err := c.store.CreateVisit(ctx, v, c.window); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return res, apperr.Conflict(opCheckIn, "already checked in at this store")
		}
		return res, notFoundOr(opCheckIn, "member not found", err)
	}

	ctx = context.WithoutCancel(ctx)
	c.notifier.Send(ctx, externalID, checkInText(st.Name, v.CheckInAt.In(c.loc)))
	c.publish(ctx, events.Event{
		Type:      events.VisitCheckedIn,
		SubjectID: externalID,
		UserID:    user.ID,
		Data:      map[string]any{"visit_id": v.ID, "store_id": st.ID},
	})
	return CheckInResult{VisitID: v.ID, CheckInAt: v.CheckInAt}, nil
}

// SubmitVisitSurvey records the questionnaire for a visit and marks it
// surveyed. A single visit never keeps companion data. Submitting again
// overwrites the earlier answers.
func (c *CheckIn) SubmitVisitSurvey(ctx context.Context, in SubmitSurveyInput) (res SubmitSurveyResult, err error) {
	started := c.now()
	defer func() {
		c.finish(ctx, opSubmitSurvey, started, err, "visit_id", in.VisitID, "subject", in.ExternalIdentityID)
	}()

	viol := make(validation.Violations)
	validation.Struct(in, viol)
	visitType, typeErr := models.ParseVisitType(in.VisitType)
	if typeErr != nil {
		if _, ok := viol["visit_type"]; !ok {
			viol["visit_type"] = "not_allowed"
		}
	}
	if !viol.Empty() {
		return res, apperr.Validation(opSubmitSurvey, "invalid visit survey", viol)
	}

	v, err := c.store.GetVisit(ctx, in.VisitID)
	if err != nil {
		return res, notFoundOr(opSubmitSurvey, "visit not found", err)
	}
	if in.ExternalIdentityID != "" {
		owner, err := c.store.GetUserByExternalID(ctx, in.ExternalIdentityID)
		if err != nil {
			return res, notFoundOr(opSubmitSurvey, "visit not found", err)
		}
		if owner.ID != v.UserID {
			return res, apperr.NotFound(opSubmitSurvey, "visit not found")
		}
	}

	survey, err := models.NewVisitSurvey(visitType, in.VisitPurpose, in.CompanionIndustries, in.CompanionJobTypes)
	if err == nil {
		err = v.ApplySurvey(survey)
	}
	if err != nil {
		return res, apperr.Validation(opSubmitSurvey, "invalid visit survey", validation.Violations{"visit_type": "not_allowed"})
	}
	if err := c.store.UpdateVisit(ctx, v); err != nil {
		return res, notFoundOr(opSubmitSurvey, "visit not found", err)
	}

	c.publish(context.WithoutCancel(ctx), events.Event{
		Type:      events.VisitSurveyed,
		SubjectID: in.ExternalIdentityID,
		UserID:    v.UserID,
		Data:      map[string]any{"visit_id": v.ID, "visit_type": string(visitType)},
	})
	return SubmitSurveyResult{VisitID: v.ID}, nil
}

func checkInText(storeName string, at time.Time) string {
	return fmt.Sprintf("Checked in at %s (%s). Enjoy your visit! Tell us how it went from the member menu afterwards.",
		storeName, at.Format("2006-01-02 15:04"))
}

// notFoundOr maps store.ErrNotFound to a NotFound error and anything else to
// a storage failure.
func notFoundOr(op, msg string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(op, msg)
	}
	return apperr.Storage(op, err)
}
