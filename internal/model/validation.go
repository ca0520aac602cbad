package model

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"unicode"
)

// Validation limits.
const (
	MaxDisplayNameLength = 120
	MaxThemeLength       = 32
	MaxInterests         = 20
	MaxInterestLength    = 64
	MaxDomainLength      = 253
)

// Validation errors.
var (
	ErrDisplayNameInvalid  = errors.New("display name is empty or too long")
	ErrORCIDInvalid        = errors.New("orcid must look like 0000-0000-0000-000X")
	ErrSubdomainInvalid    = errors.New("subdomain must be 3-63 lowercase letters, digits or hyphens")
	ErrSubdomainReserved   = errors.New("subdomain is reserved")
	ErrCustomDomainInvalid = errors.New("custom domain is not a valid hostname")
	ErrThemeInvalid        = errors.New("theme is too long or contains invalid characters")
	ErrAccentColorInvalid  = errors.New("accent color must be a #rrggbb hex value")
	ErrInterestsInvalid    = errors.New("research interests are too many or too long")
	ErrPlanInvalid         = errors.New("plan must be monthly or yearly")
)

// ValidationError reports which field of a payload was rejected.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ReservedSubdomains cannot be claimed by tenants.
// The platform name itself is checked separately by the caller.
var ReservedSubdomains = map[string]bool{
	"www":       true,
	"api":       true,
	"app":       true,
	"admin":     true,
	"dashboard": true,
	"login":     true,
	"register":  true,
	"static":    true,
	"assets":    true,
	"mail":      true,
	"status":    true,
	"docs":      true,
	"blog":      true,
	"help":      true,
	"support":   true,
}

var (
	subdomainPattern   = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]{1,61}[a-z0-9])$`)
	orcidPattern       = regexp.MustCompile(`^\d{4}-\d{4}-\d{4}-\d{3}[\dX]$`)
	accentColorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
	themePattern       = regexp.MustCompile(`^[a-z0-9-]+$`)
	domainLabelPattern = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?$`)
)

// ValidateSubdomain checks a tenant slug.
func ValidateSubdomain(slug string) error {
	if !subdomainPattern.MatchString(slug) {
		return ErrSubdomainInvalid
	}
	if ReservedSubdomains[slug] {
		return ErrSubdomainReserved
	}
	return nil
}

// ValidateORCID checks the ORCID iD format.
func ValidateORCID(orcid string) error {
	if !orcidPattern.MatchString(orcid) {
		return ErrORCIDInvalid
	}
	return nil
}

// ValidateCustomDomain checks a premium custom domain.
func ValidateCustomDomain(domain string) error {
	if len(domain) == 0 || len(domain) > MaxDomainLength {
		return ErrCustomDomainInvalid
	}
	if net.ParseIP(domain) != nil {
		return ErrCustomDomainInvalid
	}
	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return ErrCustomDomainInvalid
	}
	for _, l := range labels {
		if !domainLabelPattern.MatchString(l) {
			return ErrCustomDomainInvalid
		}
	}
	return nil
}

// Validate checks every field present in the update.
func (u ProfileUpdate) Validate() error {
	if u.DisplayName != nil {
		name := strings.TrimSpace(*u.DisplayName)
		if name == "" || len(name) > MaxDisplayNameLength || strings.ContainsFunc(name, unicode.IsControl) {
			return &ValidationError{Field: "display_name", Err: ErrDisplayNameInvalid}
		}
	}
	if u.ORCID != nil && *u.ORCID != "" {
		if err := ValidateORCID(*u.ORCID); err != nil {
			return &ValidationError{Field: "orcid", Err: err}
		}
	}
	if u.ResearchInterests != nil {
		if len(*u.ResearchInterests) > MaxInterests {
			return &ValidationError{Field: "research_interests", Err: ErrInterestsInvalid}
		}
		for _, in := range *u.ResearchInterests {
			if strings.TrimSpace(in) == "" || len(in) > MaxInterestLength {
				return &ValidationError{Field: "research_interests", Err: ErrInterestsInvalid}
			}
		}
	}
	if u.Subdomain != nil && *u.Subdomain != "" {
		if err := ValidateSubdomain(*u.Subdomain); err != nil {
			return &ValidationError{Field: "subdomain", Err: err}
		}
	}
	if u.CustomDomain != nil && *u.CustomDomain != "" {
		if err := ValidateCustomDomain(*u.CustomDomain); err != nil {
			return &ValidationError{Field: "custom_domain", Err: err}
		}
	}
	if u.Theme != nil && *u.Theme != "" {
		if len(*u.Theme) > MaxThemeLength || !themePattern.MatchString(*u.Theme) {
			return &ValidationError{Field: "theme", Err: ErrThemeInvalid}
		}
	}
	if u.AccentColor != nil && *u.AccentColor != "" {
		if !accentColorPattern.MatchString(*u.AccentColor) {
			return &ValidationError{Field: "accent_color", Err: ErrAccentColorInvalid}
		}
	}
	return nil
}

// Normalize lower-cases host-like fields and trims whitespace.
func (u *ProfileUpdate) Normalize() {
	trim := func(p *string, lower bool) {
		if p == nil {
			return
		}
		v := strings.TrimSpace(*p)
		if lower {
			v = strings.ToLower(v)
		}
		*p = v
	}
	trim(u.DisplayName, false)
	trim(u.ORCID, false)
	trim(u.Subdomain, true)
	trim(u.CustomDomain, true)
	trim(u.Theme, true)
	trim(u.AccentColor, true)
	if u.CustomDomain != nil {
		*u.CustomDomain = strings.TrimSuffix(*u.CustomDomain, ".")
	}
	if u.ResearchInterests != nil {
		cleaned := make([]string, 0, len(*u.ResearchInterests))
		for _, in := range *u.ResearchInterests {
			cleaned = append(cleaned, strings.TrimSpace(in))
		}
		*u.ResearchInterests = cleaned
	}
}
