package inventory

import (
	"context"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/shopspring/decimal"
)

// Alerter delivers operator alerts (insufficient stock on completion, critical
// stock after a deduction)
type Alerter interface {
	Alert(ctx context.Context, subject, body string) error
}

// Config tunes the reconciliation service
type Config struct {
	// MaxAttempts bounds how many times a reconciliation restarts after a conflict
	MaxAttempts       int
	CriticalThreshold decimal.Decimal
}

// DefaultConfig returns the settings used when none are configured
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       3,
		CriticalThreshold: decimal.NewFromInt(50),
	}
}

// Service is the single authoritative implementation of stock adjustment, order
// reconciliation and product availability.
type Service struct {
	store   Store
	logger  cmtlog.Logger
	alerter Alerter
	config  Config
}

// NewService creates the service. A nil logger is replaced by a no-op logger.
func NewService(store Store, logger cmtlog.Logger, config Config) *Service {
	if logger == nil {
		logger = cmtlog.NewNopLogger()
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	return &Service{
		store:  store,
		logger: logger.With("module", "inventory"),
		config: config,
	}
}

// SetAlerter attaches an alert channel; alerts are skipped when none is set
func (s *Service) SetAlerter(alerter Alerter) {
	s.alerter = alerter
}

func (s *Service) alert(ctx context.Context, subject, body string) {
	if s.alerter == nil {
		return
	}
	if err := s.alerter.Alert(ctx, subject, body); err != nil {
		s.logger.Error("Failed to send alert", "subject", subject, "err", err)
	}
}
