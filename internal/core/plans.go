package core

import (
	"bytes"
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	PlanFree    Plan = "free"
	PlanPremium Plan = "premium"
)

type Plan string

// Features is the set of plan entitlements stored with each shop.
// A zero MaxTransactionsPerMonth means unlimited.
type Features struct {
	MaxShops                int  `yaml:"max_shops" json:"max_shops"`
	MaxTransactionsPerMonth int  `yaml:"max_transactions_per_month" json:"max_transactions_per_month"`
	VoiceInputQuota         int  `yaml:"voice_input_quota" json:"voice_input_quota"`
	ChatQuota               int  `yaml:"chat_quota" json:"chat_quota"`
	SMSReminders            bool `yaml:"sms_reminders" json:"sms_reminders"`
	ExcelExport             bool `yaml:"excel_export" json:"excel_export"`
	Objectives              bool `yaml:"objectives" json:"objectives"`
	AnalyticsRetentionDays  int  `yaml:"analytics_retention_days" json:"analytics_retention_days"`
	MobileMoney             bool `yaml:"mobile_money" json:"mobile_money"`
	PrioritySupport         bool `yaml:"priority_support" json:"priority_support"`
}

//go:embed plans.yaml
var plansYAML []byte

type planFile struct {
	Plans map[Plan]Features `yaml:"plans"`
}

var (
	plansOnce sync.Once
	plans     map[Plan]Features
	plansErr  error
)

func loadPlans() (map[Plan]Features, error) {
	plansOnce.Do(func() {
		var f planFile
		dec := yaml.NewDecoder(bytes.NewReader(plansYAML))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil {
			plansErr = fmt.Errorf("parse plan presets: %w", err)
			return
		}
		plans = f.Plans
	})
	return plans, plansErr
}

// PlanFeatures returns the preset features of a plan, falling back to the free plan.
func PlanFeatures(p Plan) Features {
	all, err := loadPlans()
	if err != nil {
		return Features{VoiceInputQuota: 50, ChatQuota: 20, Objectives: true, MaxShops: 1, MaxTransactionsPerMonth: 100, AnalyticsRetentionDays: 7}
	}
	if f, ok := all[p]; ok {
		return f
	}
	return all[PlanFree]
}

func (p Plan) IsValid() bool {
	return p == PlanFree || p == PlanPremium
}
