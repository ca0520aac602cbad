package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/scholarsite/scholarsite/internal/model"
	"github.com/scholarsite/scholarsite/internal/profile"
	"github.com/scholarsite/scholarsite/internal/repository"
)

// seed-profile creates or updates a tenant profile for local development.
// With -active it also stores a synthetic active subscription so the site is
// published without going through checkout.

type output struct {
	UserID    string                   `json:"user_id"`
	Subdomain string                   `json:"subdomain,omitempty"`
	Status    model.SubscriptionStatus `json:"status"`
	Created   bool                     `json:"created"`
}

func main() {
	var (
		databaseURL = flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
		userID      = flag.String("user-id", "", "Identity subject id of the profile")
		email       = flag.String("email", "", "Profile email")
		name        = flag.String("name", "Local Researcher", "Display name")
		subdomain   = flag.String("subdomain", "", "Subdomain to claim")
		orcid       = flag.String("orcid", "", "ORCID iD in 0000-0000-0000-0000 form")
		plan        = flag.String("plan", string(model.PlanMonthly), "Plan for -active: monthly or yearly")
		active      = flag.Bool("active", false, "Mark the subscription active")
		format      = flag.String("format", "plain", "Output format: plain or json")
	)
	flag.Parse()

	if *databaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}
	if *userID == "" {
		fmt.Fprintln(os.Stderr, "-user-id is required")
		os.Exit(1)
	}
	if !model.IsValidPlan(model.Plan(*plan)) {
		fmt.Fprintln(os.Stderr, "invalid plan; use monthly or yearly")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := repository.New(ctx, *databaseURL, repository.PoolOptions{MaxConns: 2})
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect database:", err)
		os.Exit(1)
	}
	defer repo.Close()

	mail := *email
	if mail == "" {
		mail = *userID + "@example.com"
	}
	p, created, err := profile.GetOrCreate(ctx, repo, &model.Profile{
		ID:          *userID,
		DisplayName: *name,
		Email:       mail,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "create profile:", err)
		os.Exit(1)
	}

	update, err := buildUpdate(*subdomain, *orcid)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	if update != (model.ProfileUpdate{}) {
		if p, err = repo.Update(ctx, *userID, update); err != nil {
			fmt.Fprintln(os.Stderr, "update profile:", err)
			os.Exit(1)
		}
	}

	if *active {
		now := time.Now().UTC()
		end := now.AddDate(0, 1, 0)
		if model.Plan(*plan) == model.PlanYearly {
			end = now.AddDate(1, 0, 0)
		}
		// Synthetic ids keep the active record valid without a provider round trip.
		suffix := strings.ToLower(ulid.Make().String())
		sub := model.Subscription{
			Status:             model.SubscriptionStatusActive,
			Plan:               model.Plan(*plan),
			CustomerID:         "cus_seed_" + suffix,
			SubscriptionID:     "sub_seed_" + suffix,
			CurrentPeriodStart: &now,
			CurrentPeriodEnd:   &end,
		}
		if err := repo.UpsertSubscription(ctx, *userID, sub, now); err != nil {
			fmt.Fprintln(os.Stderr, "store subscription:", err)
			os.Exit(1)
		}
		p.Subscription = sub
	}

	out := output{
		UserID:    p.ID,
		Subdomain: p.Settings.Subdomain,
		Status:    p.Subscription.NormalizedStatus(),
		Created:   created,
	}

	switch strings.ToLower(*format) {
	case "plain":
		fmt.Printf("%s %s %s\n", out.UserID, out.Status, out.Subdomain)
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	default:
		fmt.Fprintln(os.Stderr, "invalid format; use plain or json")
		os.Exit(1)
	}
}

func buildUpdate(subdomain, orcid string) (model.ProfileUpdate, error) {
	var u model.ProfileUpdate
	if subdomain = strings.ToLower(strings.TrimSpace(subdomain)); subdomain != "" {
		if err := model.ValidateSubdomain(subdomain); err != nil {
			return u, err
		}
		u.Subdomain = &subdomain
	}
	if orcid = strings.TrimSpace(orcid); orcid != "" {
		if err := model.ValidateORCID(orcid); err != nil {
			return u, err
		}
		u.ORCID = &orcid
	}
	return u, nil
}
