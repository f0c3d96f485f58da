// Package services provides business logic and orchestration services.
//
// This file implements the rules deciding when an open debt deserves a reminder.
// Each rule encapsulates one condition and a policy requires all of them.

package services

import (
	"time"

	"djassa/internal/core"
)

// ReminderRule is one condition a debt must meet before it is reminded.
type ReminderRule interface {
	IsDue(d core.Debt, now time.Time) bool
}

// MinAgeRule requires the debt to be open for at least Days days.
type MinAgeRule struct{ Days int }

func (r MinAgeRule) IsDue(d core.Debt, now time.Time) bool {
	return d.Status == core.DebtOpen && d.AgeDays(now) >= r.Days
}

// SpacingRule requires Days days since the previous reminder. A debt never reminded passes.
type SpacingRule struct{ Days int }

func (r SpacingRule) IsDue(d core.Debt, now time.Time) bool {
	if d.LastReminderAt.IsZero() {
		return true
	}
	return now.Sub(d.LastReminderAt) >= time.Duration(r.Days)*24*time.Hour
}

// MaxRemindersRule stops reminding after Max reminders.
type MaxRemindersRule struct{ Max int }

func (r MaxRemindersRule) IsDue(d core.Debt, _ time.Time) bool {
	return d.RemindersSent < r.Max
}

// ReminderPolicy combines the age, spacing and count rules.
type ReminderPolicy struct {
	AfterDays int
	EveryDays int
	Max       int
	rules     []ReminderRule
}

func NewReminderPolicy(afterDays, everyDays, max int) ReminderPolicy {
	return ReminderPolicy{
		AfterDays: afterDays,
		EveryDays: everyDays,
		Max:       max,
		rules: []ReminderRule{
			MinAgeRule{Days: afterDays},
			SpacingRule{Days: everyDays},
			MaxRemindersRule{Max: max},
		},
	}
}

// IsDue reports whether every rule accepts the debt.
func (p ReminderPolicy) IsDue(d core.Debt, now time.Time) bool {
	for _, r := range p.rules {
		if !r.IsDue(d, now) {
			return false
		}
	}
	return true
}

// Cutoffs returns the creation and last-reminder bounds used to prefilter candidates in SQL.
func (p ReminderPolicy) Cutoffs(now time.Time) (createdBefore, remindedBefore time.Time) {
	return now.AddDate(0, 0, -p.AfterDays), now.AddDate(0, 0, -p.EveryDays)
}
