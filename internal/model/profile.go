// Package model defines domain entities for the application.
package model

import "time"

// Profile is a tenant: one researcher's account and the settings of their public site.
// The identity subject id is the primary key.
type Profile struct {
	ID                string       `json:"id"`
	DisplayName       string       `json:"display_name"`
	Email             string       `json:"email"`
	ORCID             string       `json:"orcid,omitempty"`
	ResearchInterests []string     `json:"research_interests,omitempty"`
	Settings          SiteSettings `json:"settings"`
	CVPath            string       `json:"cv_path,omitempty"`
	Subscription      Subscription `json:"subscription"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// SiteSettings controls how and where a tenant's public site is served.
type SiteSettings struct {
	Subdomain    string `json:"subdomain,omitempty"`
	CustomDomain string `json:"custom_domain,omitempty"`
	Theme        string `json:"theme,omitempty"`
	AccentColor  string `json:"accent_color,omitempty"`
}

// IsPublished reports whether the tenant's public site may be served.
func (p *Profile) IsPublished() bool {
	return p.Subscription.Status == SubscriptionStatusActive
}

// ProfileUpdate carries a partial profile edit. Nil fields are left unchanged.
type ProfileUpdate struct {
	DisplayName       *string   `json:"display_name,omitempty"`
	ORCID             *string   `json:"orcid,omitempty"`
	ResearchInterests *[]string `json:"research_interests,omitempty"`
	Subdomain         *string   `json:"subdomain,omitempty"`
	CustomDomain      *string   `json:"custom_domain,omitempty"`
	Theme             *string   `json:"theme,omitempty"`
	AccentColor       *string   `json:"accent_color,omitempty"`
}

// Apply copies the non-nil fields of u onto p.
func (u ProfileUpdate) Apply(p *Profile) {
	if u.DisplayName != nil {
		p.DisplayName = *u.DisplayName
	}
	if u.ORCID != nil {
		p.ORCID = *u.ORCID
	}
	if u.ResearchInterests != nil {
		p.ResearchInterests = append([]string(nil), (*u.ResearchInterests)...)
	}
	if u.Subdomain != nil {
		p.Settings.Subdomain = *u.Subdomain
	}
	if u.CustomDomain != nil {
		p.Settings.CustomDomain = *u.CustomDomain
	}
	if u.Theme != nil {
		p.Settings.Theme = *u.Theme
	}
	if u.AccentColor != nil {
		p.Settings.AccentColor = *u.AccentColor
	}
}

// PublicProfile is the subset of a profile rendered on the tenant's public site.
type PublicProfile struct {
	DisplayName       string       `json:"display_name"`
	ORCID             string       `json:"orcid,omitempty"`
	ResearchInterests []string     `json:"research_interests,omitempty"`
	Settings          SiteSettings `json:"settings"`
	HasCV             bool         `json:"has_cv"`
}

// ToPublic strips private fields from the profile.
func (p *Profile) ToPublic() PublicProfile {
	return PublicProfile{
		DisplayName:       p.DisplayName,
		ORCID:             p.ORCID,
		ResearchInterests: p.ResearchInterests,
		Settings:          p.Settings,
		HasCV:             p.CVPath != "",
	}
}
