package model

import (
	"strings"
	"time"
)

// DefaultTemplateID is stored on every contract until multiple templates exist.
const DefaultTemplateID = "influencer-agreement-v1"

// Status is the lifecycle state of a contract
type Status string

// Contract status values. Only PENDING_SIGNATURE and SIGNED are produced by
// the workflow; DRAFT and REJECTED are carried for stored rows.
const (
	StatusDraft            Status = "DRAFT"
	StatusPendingSignature Status = "PENDING_SIGNATURE"
	StatusSigned           Status = "SIGNED"
	StatusRejected         Status = "REJECTED"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPendingSignature, StatusSigned, StatusRejected:
		return true
	}
	return false
}

// ContractData holds the template fields rendered into the contract PDF.
// It is snapshotted at generation time and never changed afterwards.
type ContractData struct {
	InfluencerName      string  `json:"influencer_name"`
	BrandName           string  `json:"brand_name"`
	Rate                float64 `json:"rate"`
	Timeline            string  `json:"timeline"`
	Deliverables        string  `json:"deliverables"`
	PaymentTerms        string  `json:"payment_terms"`
	SpecialRequirements string  `json:"special_requirements,omitempty"`
}

// MissingParties returns the names of required party fields that are blank
func (d ContractData) MissingParties() []string {
	var missing []string
	if strings.TrimSpace(d.InfluencerName) == "" {
		missing = append(missing, "influencer_name")
	}
	if strings.TrimSpace(d.BrandName) == "" {
		missing = append(missing, "brand_name")
	}
	return missing
}

// Contract represents one brand-influencer agreement
type Contract struct {
	ID           string       `json:"id"`
	TemplateID   string       `json:"template_id"`
	InfluencerID string       `json:"influencer_id"`
	BrandID      string       `json:"brand_id"`
	Status       Status       `json:"status"`
	ContractData ContractData `json:"contract_data"`
	SignedBy     *string      `json:"signed_by"`
	SignedAt     *time.Time   `json:"signed_at"`
	SignatureURL *string      `json:"signature_url"`
	ContractURL  string       `json:"contract_url"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// IsSigned reports whether the contract has reached its terminal signed state
func (c *Contract) IsSigned() bool {
	return c.Status == StatusSigned
}

// Clone returns a deep copy so callers cannot mutate stored state
func (c *Contract) Clone() *Contract {
	out := *c
	if c.SignedBy != nil {
		v := *c.SignedBy
		out.SignedBy = &v
	}
	if c.SignedAt != nil {
		v := *c.SignedAt
		out.SignedAt = &v
	}
	if c.SignatureURL != nil {
		v := *c.SignatureURL
		out.SignatureURL = &v
	}
	return &out
}

// Signing carries the fields written when a contract is signed
type Signing struct {
	SignedBy     string
	SignedAt     time.Time
	SignatureURL string
	ContractURL  string
}

// Role selects which party column a listing filters on
type Role string

const (
	RoleBrand      Role = "brand"
	RoleInfluencer Role = "influencer"
)

// ParseRole converts a query value into a Role
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleBrand:
		return RoleBrand, true
	case RoleInfluencer:
		return RoleInfluencer, true
	}
	return "", false
}
