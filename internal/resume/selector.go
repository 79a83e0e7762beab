// Package resume picks where a journey continues after authentication
// completes and builds the redirect that takes it there.
package resume

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/Dopaya1/dopaya-app-sub001/internal/log"
	"github.com/Dopaya1/dopaya-app-sub001/internal/pending"
)

// Source records which signal produced a resume target
type Source string

const (
	// SourceReturnParam is an explicit returnTo carried through the
	// auth round-trip
	SourceReturnParam Source = "return_param"
	// SourcePending is a stored pending action or return URL
	SourcePending Source = "pending"
	// SourceReferer is a destination reconstructed from the page the
	// user came from
	SourceReferer Source = "referer"
	// SourceDefault is the configured fallback destination
	SourceDefault Source = "default"
)

// Target is a selected post-auth destination
type Target struct {
	// Path is a site-relative path, possibly with a query
	Path   string
	Source Source
	// OpenPaymentDialog asks the destination page to re-open the
	// payment dialog
	OpenPaymentDialog bool
	// Amount is the checkout amount to restore, zero when none
	Amount int
}

// Selector resolves the highest-priority resume signal for a journey.
// Stored signals are consumed on selection: a signal that produced a
// redirect must never produce a second one.
type Selector struct {
	store       pending.Store
	siteBaseURL string
	defaultPath string
}

// NewSelector creates a Selector. siteBaseURL scopes which absolute
// URLs are accepted as same-site; defaultPath is the fallback target.
func NewSelector(store pending.Store, siteBaseURL, defaultPath string) *Selector {
	if defaultPath == "" {
		defaultPath = "/dashboard"
	}
	return &Selector{
		store:       store,
		siteBaseURL: strings.TrimRight(siteBaseURL, "/"),
		defaultPath: defaultPath,
	}
}

// Select picks the resume target for a journey. Priority order:
// explicit returnTo parameter, then the journey's stored pending
// signal, then a destination reconstructed from the referring page,
// then the default path. The pending signal is deleted as soon as it
// is chosen, before the redirect is issued.
func (s *Selector) Select(ctx context.Context, journeyID, returnTo, referer string) *Target {
	if path, ok := s.sanitizeReturn(returnTo); ok {
		return &Target{Path: path, Source: SourceReturnParam}
	}

	if target := s.fromPending(ctx, journeyID); target != nil {
		return target
	}

	if path, ok := ReconstructFromReferer(referer, s.siteBaseURL); ok {
		return &Target{Path: path, Source: SourceReferer}
	}

	return &Target{Path: s.defaultPath, Source: SourceDefault}
}

func (s *Selector) fromPending(ctx context.Context, journeyID string) *Target {
	if journeyID == "" {
		return nil
	}
	rc, err := s.store.Get(ctx, journeyID)
	if err != nil {
		if !errors.Is(err, pending.ErrContextNotFound) {
			log.LogWarnWithFields("resume", "Pending lookup failed, falling through", map[string]any{
				"journey_id": journeyID,
				"error":      err.Error(),
			})
		}
		return nil
	}

	var target *Target
	switch {
	case rc.Action != nil:
		target = &Target{
			Path:              relativize(rc.Action.TargetURL, s.siteBaseURL),
			Source:            SourcePending,
			OpenPaymentDialog: rc.Action.Kind == pending.ActionReopenPaymentDialog || rc.OpenPaymentDialog,
			Amount:            rc.Action.Amount,
		}
	case rc.ReturnURL != "":
		target = &Target{
			Path:              relativize(rc.ReturnURL, s.siteBaseURL),
			Source:            SourcePending,
			OpenPaymentDialog: rc.OpenPaymentDialog,
		}
	default:
		return nil
	}

	// consume before redirecting so a replayed callback cannot reuse it
	if err := s.store.Delete(ctx, journeyID); err != nil {
		log.LogWarnWithFields("resume", "Failed to consume pending signal", map[string]any{
			"journey_id": journeyID,
			"error":      err.Error(),
		})
	}
	return target
}

// sanitizeReturn accepts only same-site destinations: relative paths,
// or absolute URLs on the configured site host. Anything else is an
// open-redirect attempt and is dropped.
func (s *Selector) sanitizeReturn(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}
	if strings.HasPrefix(raw, "/") && !strings.HasPrefix(raw, "//") {
		return raw, true
	}
	if s.siteBaseURL != "" && strings.HasPrefix(raw, s.siteBaseURL+"/") {
		return relativize(raw, s.siteBaseURL), true
	}
	return "", false
}

// relativize strips the site base from an absolute same-site URL; any
// other value is returned untouched.
func relativize(raw, siteBaseURL string) string {
	if siteBaseURL != "" && strings.HasPrefix(raw, siteBaseURL) {
		rest := strings.TrimPrefix(raw, siteBaseURL)
		if rest == "" {
			return "/"
		}
		if strings.HasPrefix(rest, "/") {
			return rest
		}
	}
	return raw
}

// ReconstructFromReferer recovers a support-page destination from the
// Referer header. Only same-site referrers with a /support/<slug> path
// are trusted; everything else yields no target.
func ReconstructFromReferer(referer, siteBaseURL string) (string, bool) {
	if referer == "" {
		return "", false
	}
	u, err := url.Parse(referer)
	if err != nil {
		return "", false
	}
	if siteBaseURL != "" {
		base, err := url.Parse(siteBaseURL)
		if err != nil || !strings.EqualFold(u.Host, base.Host) {
			return "", false
		}
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 2 || parts[0] != "support" || parts[1] == "" {
		return "", false
	}
	return "/support/" + parts[1], true
}
