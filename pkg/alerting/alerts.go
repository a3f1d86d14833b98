package alerting

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/platinummonkey/gatekeeper/pkg/observability"
)

// Alerter monitors denial patterns and raises alerts
type Alerter struct {
	db     *sql.DB
	logger *observability.Logger

	denialThreshold      int
	denialWindow         time.Duration
	unavailableThreshold int
	unavailableWindow    time.Duration
}

// Option configures an Alerter.
type Option func(*Alerter)

// WithDenialSpike sets the per-guild denial count and window that trigger
// a spike alert.
func WithDenialSpike(threshold int, window time.Duration) Option {
	return func(a *Alerter) {
		a.denialThreshold = threshold
		a.denialWindow = window
	}
}

// WithUnavailableBurst sets the verification-outage denial count and
// window that trigger a burst alert.
func WithUnavailableBurst(threshold int, window time.Duration) Option {
	return func(a *Alerter) {
		a.unavailableThreshold = threshold
		a.unavailableWindow = window
	}
}

// NewAlerter creates a new Alerter instance
func NewAlerter(db *sql.DB, logger *observability.Logger, opts ...Option) *Alerter {
	a := &Alerter{
		db:                   db,
		logger:               logger,
		denialThreshold:      50,
		denialWindow:         5 * time.Minute,
		unavailableThreshold: 10,
		unavailableWindow:    5 * time.Minute,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// DenialSpikeAlert reports a guild denying far more members than usual.
// A spike usually means a misconfigured required-role set after a server
// reorganization.
type DenialSpikeAlert struct {
	GuildID     string
	Denials     int
	UniqueUsers int
	TopReason   string
	Window      time.Duration
}

// UnavailableBurstAlert reports a burst of verification_unavailable
// denials, which points at a platform API outage rather than member
// behavior.
type UnavailableBurstAlert struct {
	Denials int
	Guilds  int
	Window  time.Duration
}

// RepeatedDenialAlert reports a single member repeatedly hitting gated
// commands, a candidate for a subscription upsell prompt.
type RepeatedDenialAlert struct {
	GuildID string
	UserID  string
	Denials int
	Window  time.Duration
}

// CheckDenialSpikes finds guilds whose denial volume crossed the
// configured threshold inside the window.
func (a *Alerter) CheckDenialSpikes(ctx context.Context) ([]DenialSpikeAlert, error) {
	query := `
		SELECT
			guild_id,
			COUNT(*) AS denials,
			COUNT(DISTINCT user_id) AS unique_users,
			MODE() WITHIN GROUP (ORDER BY reason) AS top_reason
		FROM denial_events
		WHERE created_at >= NOW() - $1::interval
		GROUP BY guild_id
		HAVING COUNT(*) >= $2
		ORDER BY denials DESC
		LIMIT 20
	`

	rows, err := a.db.QueryContext(ctx, query, a.denialWindow.String(), a.denialThreshold)
	if err != nil {
		return nil, fmt.Errorf("failed to query denial spikes: %w", err)
	}
	defer rows.Close()

	var alerts []DenialSpikeAlert
	for rows.Next() {
		alert := DenialSpikeAlert{Window: a.denialWindow}
		if err := rows.Scan(&alert.GuildID, &alert.Denials, &alert.UniqueUsers, &alert.TopReason); err != nil {
			return nil, fmt.Errorf("failed to scan denial spike: %w", err)
		}
		alerts = append(alerts, alert)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating denial spikes: %w", err)
	}

	return alerts, nil
}

// CheckUnavailableBurst counts verification_unavailable denials inside
// the window. A non-nil result means the platform API is likely down.
func (a *Alerter) CheckUnavailableBurst(ctx context.Context) (*UnavailableBurstAlert, error) {
	query := `
		SELECT
			COUNT(*) AS denials,
			COUNT(DISTINCT guild_id) AS guilds
		FROM denial_events
		WHERE reason = 'verification_unavailable'
		  AND created_at >= NOW() - $1::interval
	`

	var alert UnavailableBurstAlert
	err := a.db.QueryRowContext(ctx, query, a.unavailableWindow.String()).Scan(&alert.Denials, &alert.Guilds)
	if err != nil {
		return nil, fmt.Errorf("failed to query unavailable burst: %w", err)
	}

	if alert.Denials < a.unavailableThreshold {
		return nil, nil
	}
	alert.Window = a.unavailableWindow
	return &alert, nil
}

// CheckRepeatedDenials finds members denied at least minDenials times
// inside the denial window.
func (a *Alerter) CheckRepeatedDenials(ctx context.Context, minDenials int) ([]RepeatedDenialAlert, error) {
	query := `
		SELECT
			guild_id,
			user_id,
			COUNT(*) AS denials
		FROM denial_events
		WHERE reason = 'no_subscription'
		  AND created_at >= NOW() - $1::interval
		GROUP BY guild_id, user_id
		HAVING COUNT(*) >= $2
		ORDER BY denials DESC
		LIMIT 50
	`

	rows, err := a.db.QueryContext(ctx, query, a.denialWindow.String(), minDenials)
	if err != nil {
		return nil, fmt.Errorf("failed to query repeated denials: %w", err)
	}
	defer rows.Close()

	var alerts []RepeatedDenialAlert
	for rows.Next() {
		alert := RepeatedDenialAlert{Window: a.denialWindow}
		if err := rows.Scan(&alert.GuildID, &alert.UserID, &alert.Denials); err != nil {
			return nil, fmt.Errorf("failed to scan repeated denial: %w", err)
		}
		alerts = append(alerts, alert)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating repeated denials: %w", err)
	}

	return alerts, nil
}

// CheckAllAlerts runs all alert checks and logs results
func (a *Alerter) CheckAllAlerts(ctx context.Context) error {
	a.logger.Debug("running denial alert checks")

	spikes, err := a.CheckDenialSpikes(ctx)
	if err != nil {
		a.logger.WithError(err).Error("failed to check denial spikes")
	} else {
		for _, alert := range spikes {
			a.logger.WithFields(map[string]interface{}{
				"guild_id":     alert.GuildID,
				"denials":      alert.Denials,
				"unique_users": alert.UniqueUsers,
				"top_reason":   alert.TopReason,
				"window":       alert.Window.String(),
			}).Warn("denial spike detected")
		}
	}

	burst, err := a.CheckUnavailableBurst(ctx)
	if err != nil {
		a.logger.WithError(err).Error("failed to check unavailable burst")
	} else if burst != nil {
		a.logger.WithFields(map[string]interface{}{
			"denials": burst.Denials,
			"guilds":  burst.Guilds,
			"window":  burst.Window.String(),
		}).Error("verification outage suspected")
	}

	a.logger.Debug("denial alert checks completed")
	return nil
}
