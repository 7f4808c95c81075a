package membership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/diewo77/go-members/internal/events"
	"github.com/diewo77/go-members/internal/identity"
	"github.com/diewo77/go-members/internal/models"
	"github.com/diewo77/go-members/internal/payment"
	"github.com/diewo77/go-members/internal/store"
)

var errStoreDown = errors.New("connection reset by peer")

// tokenVerifier accepts "token:<subject>:<name>".
type tokenVerifier struct{}

func (tokenVerifier) Verify(_ context.Context, tok string) (identity.Claims, error) {
	parts := strings.Split(tok, ":")
	if len(parts) != 3 || parts[0] != "token" || parts[1] == "" {
		return identity.Claims{}, identity.ErrInvalidToken
	}
	return identity.Claims{Subject: parts[1], Name: parts[2], Picture: "https://img/" + parts[1]}, nil
}

type countingProvisioner struct {
	mu    sync.Mutex
	err   error
	after func() // runs once the customer exists
	calls []payment.CustomerRequest
}

func (p *countingProvisioner) CreateCustomer(_ context.Context, req payment.CustomerRequest) (payment.Customer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, req)
	if p.err != nil {
		return payment.Customer{}, p.err
	}
	if p.after != nil {
		p.after()
	}
	return payment.Customer{ID: fmt.Sprintf("cust_%d", len(p.calls))}, nil
}

func (p *countingProvisioner) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

type sent struct {
	to, text string
	live     bool // ctx not cancelled when the call arrived
}

type recordingNotifier struct {
	mu    sync.Mutex
	sends []sent
	menus []string
}

func (n *recordingNotifier) Send(ctx context.Context, to, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sends = append(n.sends, sent{to: to, text: text, live: ctx.Err() == nil})
}

func (n *recordingNotifier) SetChannelMenu(_ context.Context, to, menuID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.menus = append(n.menus, to+"="+menuID)
}

func (n *recordingNotifier) sendCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sends)
}

type recordingEvents struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingEvents) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingEvents) Close() error { return nil }

func (r *recordingEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

// faultyStore fails selected calls.
type faultyStore struct {
	store.UserStore
	failCreateUser    error
	failCreateProfile error
	failGetVisits     error
}

func (s *faultyStore) CreateUser(ctx context.Context, u *models.User) error {
	if s.failCreateUser != nil {
		return s.failCreateUser
	}
	return s.UserStore.CreateUser(ctx, u)
}

func (s *faultyStore) CreateProfile(ctx context.Context, p *models.UserProfile) error {
	if s.failCreateProfile != nil {
		return s.failCreateProfile
	}
	return s.UserStore.CreateProfile(ctx, p)
}

func (s *faultyStore) GetVisitsByUser(ctx context.Context, userID uint, limit int) ([]models.Visit, error) {
	if s.failGetVisits != nil {
		return nil, s.failGetVisits
	}
	return s.UserStore.GetVisitsByUser(ctx, userID, limit)
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	d, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}
	sqlDB, err := d.DB()
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := d.AutoMigrate(&models.User{}, &models.UserProfile{}, &models.Survey{}, &models.Store{}, &models.Visit{}); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return d
}

// harness wires every workflow onto one sqlite store.
type harness struct {
	db       *gorm.DB
	store    *faultyStore
	payments *countingProvisioner
	notifier *recordingNotifier
	events   *recordingEvents
	clock    *clock
	ids      int

	reg       *Registration
	link      *Linking
	checkIn   *CheckIn
	analytics *Analytics
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		db:       setupTestDB(t),
		payments: &countingProvisioner{},
		notifier: &recordingNotifier{},
		events:   &recordingEvents{},
		clock:    newClock(),
	}
	h.store = &faultyStore{UserStore: store.NewGormStore(h.db)}
	d := Deps{
		Identity:     tokenVerifier{},
		Payments:     h.payments,
		Store:        h.store,
		Notifier:     h.notifier,
		Events:       h.events,
		Logger:       slog.New(slog.DiscardHandler),
		Now:          h.clock.Now,
		NewID:        func() string { h.ids++; return fmt.Sprintf("v%d", h.ids) },
		MemberMenuID: "richmenu-member",
	}
	h.reg = NewRegistration(d)
	h.link = NewLinking(d)
	h.checkIn = NewCheckIn(d)
	h.analytics = NewAnalytics(d)
	return h
}

func (h *harness) seedStore(t *testing.T, id, name string) {
	t.Helper()
	if err := h.db.Create(&models.Store{ID: id, Name: name}).Error; err != nil {
		t.Fatal(err)
	}
}

func (h *harness) userCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	if err := h.db.Model(&models.User{}).Count(&n).Error; err != nil {
		t.Fatal(err)
	}
	return n
}

func validPayload(email string) RegistrationPayload {
	return RegistrationPayload{
		Email:     email,
		Phone:     "+66812345678",
		Gender:    "female",
		BirthDate: "1992-07-15",
		Profile:   ProfileInput{Industry: "IT", JobType: "engineer", ExperienceYears: 6},
		Survey: SurveyInput{
			Interests:         []string{"networking", "ai"},
			SideJobInterest:   "yes",
			MeetingPreference: "offline",
		},
	}
}

// register onboards subject with email and fails the test on error.
func (h *harness) register(t *testing.T, subject, email string) RegisterResult {
	t.Helper()
	res, err := h.reg.Register(context.Background(), RegisterInput{
		IDToken: "token:" + subject + ":Member " + subject,
		Survey:  validPayload(email),
	})
	if err != nil {
		t.Fatalf("Register(%s, %s): %v", subject, email, err)
	}
	return res
}
