// Package alerting watches the denial audit trail for operational problems.
//
// # Overview
//
// The checks run SQL aggregations over denial_events:
//
//   - denial spikes: one guild denying many members, usually a
//     misconfigured required-role set
//   - unavailable bursts: many verification_unavailable denials across
//     guilds, usually a platform API outage
//   - repeated denials: one member hitting gated commands again and again
//
// Alerts are emitted through the structured logger; the Scheduler runs
// the checks on a cron schedule.
package alerting
