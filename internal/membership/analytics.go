package membership

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/diewo77/go-members/internal/apperr"
	"github.com/diewo77/go-members/internal/models"
	"github.com/diewo77/go-members/internal/store"
)

const (
	opMembershipCard = "membership_card"
	opVisitHistory   = "visit_history"

	recentVisitCount = 2
)

// MembershipCard is the member's self-service view.
type MembershipCard struct {
	Profile ProfileView `json:"profile"`
	Stats   Stats       `json:"stats"`
	Charts  Charts      `json:"charts"`
}

// ProfileView is the member part of the card. Professional fields are empty
// when registration did not complete.
type ProfileView struct {
	DisplayName     string    `json:"display_name"`
	PictureURL      string    `json:"picture_url,omitempty"`
	Email           string    `json:"email"`
	MemberSince     time.Time `json:"member_since"`
	Industry        string    `json:"industry,omitempty"`
	JobType         string    `json:"job_type,omitempty"`
	ExperienceYears int       `json:"experience_years"`
}

// Stats summarizes the member's visits.
type Stats struct {
	TotalVisits int `json:"total_visits"`
	// FavoriteStore is the id of the most visited store, empty without visits.
	FavoriteStore     string         `json:"favorite_store,omitempty"`
	FavoriteStoreName string         `json:"favorite_store_name,omitempty"`
	StoreVisits       map[string]int `json:"store_visits"`
	RecentVisits      []RecentVisit  `json:"recent_visits"`
}

// RecentVisit is one entry of the recent-visits list.
type RecentVisit struct {
	Date      string `json:"date"` // 2006-01-02 in the configured time zone
	StoreName string `json:"store_name"`
}

// Charts are label frequencies over all visits.
type Charts struct {
	CompanionIndustry map[string]int `json:"companion_industry"`
	CompanionJobType  map[string]int `json:"companion_job_type"`
	VisitPurpose      map[string]int `json:"visit_purpose"`
}

// VisitView is one entry of the visit history.
type VisitView struct {
	VisitID             string            `json:"visit_id"`
	StoreID             string            `json:"store_id"`
	StoreName           string            `json:"store_name"`
	CheckInAt           time.Time         `json:"check_in_at"`
	State               models.VisitState `json:"state"`
	VisitType           string            `json:"visit_type,omitempty"`
	VisitPurpose        string            `json:"visit_purpose,omitempty"`
	CompanionIndustries []string          `json:"companion_industries"`
	CompanionJobTypes   []string          `json:"companion_job_types"`
}

// Analytics serves the membership card and visit history.
type Analytics struct {
	core
}

// NewAnalytics returns the analytics reader.
func NewAnalytics(d Deps) *Analytics {
	return &Analytics{core: newCore(d)}
}

// MembershipCard builds the card of the member bound to externalID.
func (a *Analytics) MembershipCard(ctx context.Context, externalID string) (card MembershipCard, err error) {
	started := a.now()
	defer func() {
		a.finish(ctx, opMembershipCard, started, err, "subject", externalID)
	}()

	user, err := a.store.GetUserByExternalID(ctx, externalID)
	if err != nil {
		return card, notFoundOr(opMembershipCard, "member not found", err)
	}
	visits, err := a.store.GetVisitsByUser(ctx, user.ID, 0)
	if err != nil {
		return card, apperr.Storage(opMembershipCard, err)
	}

	card.Profile = ProfileView{
		DisplayName: user.DisplayName,
		PictureURL:  user.PictureURL,
		Email:       user.Email,
		MemberSince: user.CreatedAt,
	}
	profile, err := a.store.GetProfile(ctx, user.ID)
	switch {
	case err == nil:
		card.Profile.Industry = profile.Industry
		card.Profile.JobType = profile.JobType
		card.Profile.ExperienceYears = profile.ExperienceYears
	case !errors.Is(err, store.ErrNotFound):
		return card, apperr.Storage(opMembershipCard, err)
	}

	card.Stats, card.Charts = Aggregate(visits, a.loc)
	return card, nil
}

// VisitHistory lists the member's visits, most recent first.
func (a *Analytics) VisitHistory(ctx context.Context, externalID string) (views []VisitView, err error) {
	started := a.now()
	defer func() {
		a.finish(ctx, opVisitHistory, started, err, "subject", externalID)
	}()

	user, err := a.store.GetUserByExternalID(ctx, externalID)
	if err != nil {
		return nil, notFoundOr(opVisitHistory, "member not found", err)
	}
	visits, err := a.store.GetVisitsByUser(ctx, user.ID, 0)
	if err != nil {
		return nil, apperr.Storage(opVisitHistory, err)
	}

	sorted := sortedByRecency(visits)
	views = make([]VisitView, 0, len(sorted))
	for _, v := range sorted {
		view := VisitView{
			VisitID:             v.ID,
			StoreID:             v.StoreID,
			StoreName:           storeName(v),
			CheckInAt:           v.CheckInAt,
			State:               v.State,
			CompanionIndustries: []string{},
			CompanionJobTypes:   []string{},
		}
		if s, ok := v.Survey(); ok {
			view.VisitType = string(s.Type)
			view.VisitPurpose = s.Purpose
			view.CompanionIndustries = append(view.CompanionIndustries, s.CompanionIndustries...)
			view.CompanionJobTypes = append(view.CompanionJobTypes, s.CompanionJobTypes...)
		}
		views = append(views, view)
	}
	return views, nil
}

// Aggregate computes the card statistics and charts from a visit history in
// any order.
//
// The favorite store is the one with the most visits. Ties go to the store
// visited most recently, then to the lexically smallest store id. Visits not
// yet surveyed contribute to counts but not to charts.
func Aggregate(visits []models.Visit, loc *time.Location) (Stats, Charts) {
	if loc == nil {
		loc = time.UTC
	}
	stats := Stats{
		TotalVisits:  len(visits),
		StoreVisits:  make(map[string]int),
		RecentVisits: []RecentVisit{},
	}
	charts := Charts{
		CompanionIndustry: make(map[string]int),
		CompanionJobType:  make(map[string]int),
		VisitPurpose:      make(map[string]int),
	}

	sorted := sortedByRecency(visits)
	lastVisit := make(map[string]time.Time)
	names := make(map[string]string)
	for _, v := range sorted {
		stats.StoreVisits[v.StoreID]++
		if _, seen := lastVisit[v.StoreID]; !seen {
			lastVisit[v.StoreID] = v.CheckInAt
			names[v.StoreID] = storeName(v)
		}
		s, ok := v.Survey()
		if !ok {
			continue
		}
		s.CompanionIndustries.Count(charts.CompanionIndustry)
		s.CompanionJobTypes.Count(charts.CompanionJobType)
		if p := strings.TrimSpace(s.Purpose); p != "" {
			charts.VisitPurpose[p]++
		}
	}

	for id, n := range stats.StoreVisits {
		best := stats.FavoriteStore
		switch {
		case best == "":
		case n != stats.StoreVisits[best]:
			if n < stats.StoreVisits[best] {
				continue
			}
		case !lastVisit[id].Equal(lastVisit[best]):
			if lastVisit[id].Before(lastVisit[best]) {
				continue
			}
		case id > best:
			continue
		}
		stats.FavoriteStore = id
	}
	stats.FavoriteStoreName = names[stats.FavoriteStore]

	for i := 0; i < len(sorted) && i < recentVisitCount; i++ {
		stats.RecentVisits = append(stats.RecentVisits, RecentVisit{
			Date:      sorted[i].CheckInAt.In(loc).Format(time.DateOnly),
			StoreName: storeName(sorted[i]),
		})
	}
	return stats, charts
}

// sortedByRecency returns a copy ordered by check-in time descending, with
// the visit id as a stable tie-break.
func sortedByRecency(visits []models.Visit) []models.Visit {
	out := make([]models.Visit, len(visits))
	copy(out, visits)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CheckInAt.Equal(out[j].CheckInAt) {
			return out[i].CheckInAt.After(out[j].CheckInAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func storeName(v models.Visit) string {
	if v.Store != nil && v.Store.Name != "" {
		return v.Store.Name
	}
	return v.StoreID
}
