package main

import (
	"errors"
	"log/slog"

	"gorm.io/gorm"

	"github.com/diewo77/go-members/internal/config"
	"github.com/diewo77/go-members/internal/events"
	"github.com/diewo77/go-members/internal/identity"
	"github.com/diewo77/go-members/internal/membership"
	"github.com/diewo77/go-members/internal/metrics"
	"github.com/diewo77/go-members/internal/notify"
	"github.com/diewo77/go-members/internal/payment"
	"github.com/diewo77/go-members/internal/store"
)

// wiring holds the collaborators built once at startup.
type wiring struct {
	deps     membership.Deps
	verifier identity.Verifier
	notifier *notify.BestEffort
	closers  []func() error
}

// Close drains pending notifications, then releases the clients in reverse
// order of creation.
func (w *wiring) Close() error {
	if w.notifier != nil {
		w.notifier.Wait()
	}
	var errs []error
	for i := len(w.closers) - 1; i >= 0; i-- {
		errs = append(errs, w.closers[i]())
	}
	return errors.Join(errs...)
}

func wire(cfg *config.Config, gdb *gorm.DB, log *slog.Logger, m *metrics.Metrics) (*wiring, error) {
	w := &wiring{}
	loc, err := cfg.Membership.Location()
	if err != nil {
		return nil, err
	}

	verifier := identity.NewLineVerifier(cfg.Line.ChannelID, cfg.Line.ChannelSecret)
	w.verifier = verifier

	payments, err := newProvisioner(cfg, log)
	if err != nil {
		return nil, err
	}

	var st store.UserStore = store.NewGormStore(gdb)
	if cfg.Membership.StoreCacheTTL > 0 {
		st = store.NewCachingStore(st, cfg.Membership.StoreCacheTTL)
	}

	var dispatcher notify.Dispatcher
	switch cfg.Notify.Mode {
	case "direct":
		dispatcher = notify.NewLineClient(cfg.Line.APIBaseURL, cfg.Line.ChannelAccessToken, cfg.Notify.Timeout)
	case "queue":
		q, err := notify.NewQueueDispatcher(cfg.Notify.AMQPURL, cfg.Notify.Exchange)
		if err != nil {
			return nil, err
		}
		w.closers = append(w.closers, q.Close)
		dispatcher = q
	default:
		dispatcher = notify.LogDispatcher{Logger: log}
	}
	w.notifier = notify.NewBestEffort(dispatcher, cfg.Notify.Timeout, cfg.Notify.Attempts, log, m)

	var pub events.Publisher = events.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		w.closers = append(w.closers, kp.Close)
		pub = kp
	}

	w.deps = membership.Deps{
		Identity:      verifier,
		Payments:      payments,
		Store:         st,
		Notifier:      w.notifier,
		Events:        pub,
		Logger:        log,
		Metrics:       m,
		CheckInWindow: cfg.Membership.CheckInWindow,
		Location:      loc,
		MemberMenuID:  cfg.Line.MemberMenuID,
	}
	return w, nil
}

// newProvisioner returns the Omise provisioner, or local placeholder
// customers when APP_DEV is set and no secret key is configured.
func newProvisioner(cfg *config.Config, log *slog.Logger) (payment.Provisioner, error) {
	if cfg.Omise.SecretKey != "" {
		return payment.NewOmiseProvisioner(cfg.Omise.PublicKey, cfg.Omise.SecretKey)
	}
	if !cfg.App.Dev {
		return nil, errors.New("OMISE_SECRET_KEY is required unless APP_DEV is set")
	}
	log.Warn("OMISE_SECRET_KEY not set, payment customers are local placeholders")
	return payment.LocalProvisioner{}, nil
}
