package membership

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/diewo77/go-members/internal/apperr"
	"github.com/diewo77/go-members/internal/events"
	"github.com/diewo77/go-members/internal/validation"
)

func TestCheckIn_DuplicateWindow(t *testing.T) {
	h := newHarness(t)
	h.register(t, "sub1", "a@x.com")
	h.seedStore(t, "store1", "Siam Square")
	ctx := context.Background()

	first, err := h.checkIn.CheckIn(ctx, "sub1", "store1")
	if err != nil {
		t.Fatalf("first check-in: %v", err)
	}
	if first.VisitID != "v1" || !first.CheckInAt.Equal(h.clock.Now()) {
		t.Fatalf("first = %+v", first)
	}

	if _, err := h.checkIn.CheckIn(ctx, "sub1", "store1"); !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("immediate repeat err = %v, want conflict", err)
	}

	h.clock.Advance(59 * time.Minute)
	if _, err := h.checkIn.CheckIn(ctx, "sub1", "store1"); !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("repeat inside window err = %v, want conflict", err)
	}

	h.clock.Advance(time.Minute)
	second, err := h.checkIn.CheckIn(ctx, "sub1", "store1")
	if err != nil {
		t.Fatalf("check-in after window: %v", err)
	}
	if second.VisitID == first.VisitID {
		t.Fatalf("expected a new visit id, got %q twice", second.VisitID)
	}

	views, err := h.analytics.VisitHistory(ctx, "sub1")
	if err != nil || len(views) != 2 {
		t.Fatalf("history = %v, %v", views, err)
	}
}

func TestCheckIn_OtherStoreInsideWindow(t *testing.T) {
	h := newHarness(t)
	h.register(t, "sub1", "a@x.com")
	h.seedStore(t, "store1", "Siam Square")
	h.seedStore(t, "store2", "Thonglor")
	ctx := context.Background()

	if _, err := h.checkIn.CheckIn(ctx, "sub1", "store1"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.checkIn.CheckIn(ctx, "sub1", "store2"); err != nil {
		t.Fatalf("check-in at another store: %v", err)
	}
	// confirmation after registration notice
	if h.notifier.sendCount() != 3 {
		t.Fatalf("sends = %d, want 3", h.notifier.sendCount())
	}
	types := h.events.types()
	if len(types) != 3 || types[1] != events.VisitCheckedIn || types[2] != events.VisitCheckedIn {
		t.Fatalf("events = %v", types)
	}
}

func TestCheckIn_CustomWindow(t *testing.T) {
	h := newHarness(t)
	h.register(t, "sub1", "a@x.com")
	h.seedStore(t, "store1", "Siam Square")
	c := NewCheckIn(Deps{Store: h.store, Now: h.clock.Now, CheckInWindow: 10 * time.Minute})
	ctx := context.Background()

	if _, err := c.CheckIn(ctx, "sub1", "store1"); err != nil {
		t.Fatal(err)
	}
	h.clock.Advance(10 * time.Minute)
	if _, err := c.CheckIn(ctx, "sub1", "store1"); err != nil {
		t.Fatalf("check-in after a 10m window: %v", err)
	}
}

func TestCheckIn_NotFound(t *testing.T) {
	h := newHarness(t)
	h.register(t, "sub1", "a@x.com")
	h.seedStore(t, "store1", "Siam Square")

	tests := []struct {
		name, sub, store, msg string
	}{
		{"unknown member", "nobody", "store1", "member not found"},
		{"unknown store", "sub1", "store9", "store not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.checkIn.CheckIn(context.Background(), tt.sub, tt.store)
			if !apperr.IsKind(err, apperr.KindNotFound) {
				t.Fatalf("err = %v, want not found", err)
			}
			if _, msg, _ := apperr.Public(err); msg != tt.msg {
				t.Fatalf("message = %q, want %q", msg, tt.msg)
			}
		})
	}
}

func TestCheckIn_ConcurrentSingleWinner(t *testing.T) {
	h := newHarness(t)
	h.register(t, "sub1", "a@x.com")
	h.seedStore(t, "store1", "Siam Square")
	var mu sync.Mutex
	n := 0
	c := NewCheckIn(Deps{
		Store: h.store,
		Now:   h.clock.Now,
		NewID: func() string { mu.Lock(); defer mu.Unlock(); n++; return "c" + string(rune('0'+n)) },
	})

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.CheckIn(context.Background(), "sub1", "store1")
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case !apperr.IsKind(err, apperr.KindConflict):
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("successful check-ins = %d, want 1", ok)
	}
}

func TestSubmitVisitSurvey_SingleDropsCompanions(t *testing.T) {
	h := newHarness(t)
	h.register(t, "sub1", "a@x.com")
	h.seedStore(t, "store1", "Siam Square")
	ctx := context.Background()
	ci, err := h.checkIn.CheckIn(ctx, "sub1", "store1")
	if err != nil {
		t.Fatal(err)
	}

	_, err = h.checkIn.SubmitVisitSurvey(ctx, SubmitSurveyInput{
		VisitID:             ci.VisitID,
		ExternalIdentityID:  "sub1",
		VisitType:           "single",
		VisitPurpose:        "work",
		CompanionIndustries: []string{"IT", "finance"},
		CompanionJobTypes:   []string{"engineer"},
	})
	if err != nil {
		t.Fatalf("SubmitVisitSurvey: %v", err)
	}

	views, err := h.analytics.VisitHistory(ctx, "sub1")
	if err != nil || len(views) != 1 {
		t.Fatalf("history = %v, %v", views, err)
	}
	v := views[0]
	if v.State != "surveyed" || v.VisitType != "single" || v.VisitPurpose != "work" {
		t.Fatalf("view = %+v", v)
	}
	if len(v.CompanionIndustries) != 0 || len(v.CompanionJobTypes) != 0 {
		t.Fatalf("single visit kept companions: %+v", v)
	}
	if types := h.events.types(); types[len(types)-1] != events.VisitSurveyed {
		t.Fatalf("events = %v", types)
	}
}

func TestSubmitVisitSurvey_ResubmissionOverwrites(t *testing.T) {
	h := newHarness(t)
	h.register(t, "sub1", "a@x.com")
	h.seedStore(t, "store1", "Siam Square")
	ctx := context.Background()
	ci, err := h.checkIn.CheckIn(ctx, "sub1", "store1")
	if err != nil {
		t.Fatal(err)
	}

	inputs := []SubmitSurveyInput{
		{VisitID: ci.VisitID, VisitType: "group", VisitPurpose: "networking", CompanionIndustries: []string{"IT"}},
		{VisitID: ci.VisitID, VisitType: "group", CompanionIndustries: []string{"finance", "retail"}, CompanionJobTypes: []string{"sales"}},
	}
	for _, in := range inputs {
		if _, err := h.checkIn.SubmitVisitSurvey(ctx, in); err != nil {
			t.Fatalf("SubmitVisitSurvey(%+v): %v", in, err)
		}
	}

	views, err := h.analytics.VisitHistory(ctx, "sub1")
	if err != nil {
		t.Fatal(err)
	}
	v := views[0]
	if v.VisitPurpose != "" || len(v.CompanionIndustries) != 2 || v.CompanionIndustries[0] != "finance" || len(v.CompanionJobTypes) != 1 {
		t.Fatalf("second submission did not replace the first: %+v", v)
	}
}

func TestSubmitVisitSurvey_Rejections(t *testing.T) {
	h := newHarness(t)
	h.register(t, "sub1", "a@x.com")
	h.register(t, "sub2", "b@x.com")
	h.seedStore(t, "store1", "Siam Square")
	ctx := context.Background()
	ci, err := h.checkIn.CheckIn(ctx, "sub1", "store1")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		in       SubmitSurveyInput
		wantKind apperr.Kind
		wantViol string
	}{
		{"missing type", SubmitSurveyInput{VisitID: ci.VisitID}, apperr.KindValidation, "required"},
		{"unknown type", SubmitSurveyInput{VisitID: ci.VisitID, VisitType: "couple"}, apperr.KindValidation, "not_allowed"},
		{"unknown visit", SubmitSurveyInput{VisitID: "v404", VisitType: "single"}, apperr.KindNotFound, ""},
		{"another member's visit", SubmitSurveyInput{VisitID: ci.VisitID, ExternalIdentityID: "sub2", VisitType: "single"}, apperr.KindNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.checkIn.SubmitVisitSurvey(ctx, tt.in)
			if !apperr.IsKind(err, tt.wantKind) {
				t.Fatalf("err = %v, want %s", err, tt.wantKind)
			}
			if tt.wantViol == "" {
				return
			}
			var appErr *apperr.Error
			if !errors.As(err, &appErr) {
				t.Fatalf("not an *apperr.Error: %v", err)
			}
			if viol := appErr.Details.(validation.Violations); viol["visit_type"] != tt.wantViol {
				t.Fatalf("violations = %v, want visit_type=%s", viol, tt.wantViol)
			}
		})
	}

	views, err := h.analytics.VisitHistory(ctx, "sub1")
	if err != nil || views[0].State != "checked_in" {
		t.Fatalf("rejected submissions changed the visit: %+v, %v", views, err)
	}
}
