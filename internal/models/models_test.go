package models

import (
	"errors"
	"testing"
	"time"
)

func TestUser_LinkedTo(t *testing.T) {
	sub := "U123"
	tests := []struct {
		name     string
		user     User
		external string
		isLinked bool
		linkedTo bool
	}{
		{"unbound", User{}, "U123", false, false},
		{"empty string", User{ExternalIdentityID: new(string)}, "U123", false, false},
		{"same id", User{ExternalIdentityID: &sub}, "U123", true, true},
		{"other id", User{ExternalIdentityID: &sub}, "U999", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.user.IsLinked(); got != tt.isLinked {
				t.Errorf("IsLinked() = %v, want %v", got, tt.isLinked)
			}
			if got := tt.user.LinkedTo(tt.external); got != tt.linkedTo {
				t.Errorf("LinkedTo(%q) = %v, want %v", tt.external, got, tt.linkedTo)
			}
		})
	}
}

func TestParseVisitType(t *testing.T) {
	tests := []struct {
		in      string
		want    VisitType
		wantErr bool
	}{
		{"single", VisitTypeSingle, false},
		{" Group ", VisitTypeGroup, false},
		{"", "", true},
		{"family", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseVisitType(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidVisitType) {
					t.Fatalf("expected ErrInvalidVisitType got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("ParseVisitType(%q) = %q, %v", tt.in, got, err)
			}
		})
	}
}

func TestNewVisitSurvey_SingleDropsCompanions(t *testing.T) {
	s, err := NewVisitSurvey(VisitTypeSingle, "work", []string{"IT"}, []string{"engineer"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.CompanionIndustries) != 0 || len(s.CompanionJobTypes) != 0 {
		t.Fatalf("expected empty companions for single visit, got %v / %v", s.CompanionIndustries, s.CompanionJobTypes)
	}
	if s.CompanionIndustries == nil || s.CompanionJobTypes == nil {
		t.Fatalf("expected empty, non-nil lists")
	}
}

func TestNewVisitSurvey_GroupCleansLabels(t *testing.T) {
	s, err := NewVisitSurvey(VisitTypeGroup, "  networking ", []string{" IT", "", "IT", "finance "}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Purpose != "networking" {
		t.Errorf("Purpose = %q, want networking", s.Purpose)
	}
	want := []string{"IT", "IT", "finance"}
	if len(s.CompanionIndustries) != len(want) {
		t.Fatalf("CompanionIndustries = %v, want %v", s.CompanionIndustries, want)
	}
	for i := range want {
		if s.CompanionIndustries[i] != want[i] {
			t.Fatalf("CompanionIndustries = %v, want %v", s.CompanionIndustries, want)
		}
	}
}

func TestNewVisitSurvey_InvalidType(t *testing.T) {
	if _, err := NewVisitSurvey("couple", "", nil, nil); !errors.Is(err, ErrInvalidVisitType) {
		t.Fatalf("expected ErrInvalidVisitType got %v", err)
	}
}

func TestVisit_StateTransitions(t *testing.T) {
	v := NewVisit("v1", 1, "store1", time.Now())
	if v.State != VisitStateCheckedIn {
		t.Fatalf("new visit state = %q", v.State)
	}
	if _, ok := v.Survey(); ok {
		t.Fatal("checked-in visit must not expose survey data")
	}

	if err := v.ApplySurvey(VisitSurvey{Type: VisitTypeGroup, Purpose: "study", CompanionIndustries: Labels{"IT"}}); err != nil {
		t.Fatalf("apply group: %v", err)
	}
	s, ok := v.Survey()
	if !ok || s.Type != VisitTypeGroup || s.Purpose != "study" || len(s.CompanionIndustries) != 1 {
		t.Fatalf("unexpected survey after group apply: %+v ok=%v", s, ok)
	}

	// Overwrite with a single visit built by hand; companions must still be dropped.
	if err := v.ApplySurvey(VisitSurvey{Type: VisitTypeSingle, CompanionIndustries: Labels{"IT"}, CompanionJobTypes: Labels{"sales"}}); err != nil {
		t.Fatalf("apply single: %v", err)
	}
	s, _ = v.Survey()
	if s.Type != VisitTypeSingle || len(s.CompanionIndustries) != 0 || len(s.CompanionJobTypes) != 0 {
		t.Fatalf("single overwrite kept companions: %+v", s)
	}
	if v.VisitPurpose != nil {
		t.Fatalf("empty purpose should clear column, got %q", *v.VisitPurpose)
	}
	if v.State != VisitStateSurveyed {
		t.Fatalf("state = %q, want surveyed", v.State)
	}
}

func TestLabels_ValueScan(t *testing.T) {
	in := Labels{"IT", "finance", "a,b"}
	val, err := in.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	var out Labels
	if err := out.Scan(val); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("round trip = %v, want %v", out, in)
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("round trip = %v, want %v", out, in)
		}
	}

	var empty Labels
	if err := empty.Scan(nil); err != nil || len(empty) != 0 {
		t.Fatalf("scan nil = %v, %v", empty, err)
	}
}

func TestLabels_Count(t *testing.T) {
	counts := map[string]int{}
	Labels{"IT"}.Count(counts)
	Labels{"IT", "finance"}.Count(counts)
	Labels(nil).Count(counts)
	if counts["IT"] != 2 || counts["finance"] != 1 || len(counts) != 2 {
		t.Fatalf("counts = %v", counts)
	}
}
