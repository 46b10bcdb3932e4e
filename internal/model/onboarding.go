package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Onboarding steps. Step numbers are server-authoritative; the client only
// mirrors them.
const (
	StepCompany    = 1
	StepIndustries = 2
	StepPlan       = 3
	StepPlugins    = 4
	StepFinalize   = 5
)

// DraftVersion tags the draft schema so future shape changes stay readable.
const DraftVersion = 1

// PlanSelection is the plan chosen in the draft.
type PlanSelection struct {
	ID      uuid.UUID `json:"id"`
	Billing string    `json:"billing"` // "monthly" | "yearly"
}

// CompanyDraft carries the step-1 company info.
type CompanyDraft struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Draft is the typed onboarding payload, mutated incrementally across steps.
type Draft struct {
	Version    int            `json:"version"`
	Company    *CompanyDraft  `json:"company,omitempty"`
	Industries []string       `json:"industries,omitempty"`
	Plan       *PlanSelection `json:"plan,omitempty"`
	Plugins    []string       `json:"plugins,omitempty"`
	Branches   int            `json:"branches"`
}

// Onboarding is the per-company singleton tracking wizard progress.
type Onboarding struct {
	ID             uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CompanyID      uuid.UUID       `gorm:"type:uuid;uniqueIndex;not null" json:"company_id"`
	Company        Company         `gorm:"foreignKey:CompanyID;constraint:OnDelete:CASCADE;" json:"-"`
	CurrentStep    int             `gorm:"not null;default:1" json:"current_step"`
	MaxStepReached int             `gorm:"not null;default:1" json:"max_step_reached"`
	IsCompleted    bool            `gorm:"not null;default:false" json:"is_completed"`
	Data           json.RawMessage `gorm:"type:jsonb;not null;default:'{}'" json:"data"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// DecodeDraft unmarshals the stored draft blob.
func (o *Onboarding) DecodeDraft() (Draft, error) {
	d := Draft{Version: DraftVersion}
	if len(o.Data) == 0 {
		return d, nil
	}
	if err := json.Unmarshal(o.Data, &d); err != nil {
		return Draft{}, err
	}
	if d.Version == 0 {
		d.Version = DraftVersion
	}
	return d, nil
}

// EncodeDraft marshals the draft back into the stored blob.
func (o *Onboarding) EncodeDraft(d Draft) error {
	d.Version = DraftVersion
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	o.Data = raw
	return nil
}
