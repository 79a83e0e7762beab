package resume

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/Dopaya1/dopaya-app-sub001/internal/log"
)

// Dispatcher turns a selected target into the final redirect, decorating
// the destination with the hints the frontend reads on arrival.
type Dispatcher struct {
	siteBaseURL string
}

// NewDispatcher creates a Dispatcher that redirects within siteBaseURL
func NewDispatcher(siteBaseURL string) *Dispatcher {
	return &Dispatcher{siteBaseURL: siteBaseURL}
}

// BuildURL composes the absolute destination URL for a target. isNewUser
// controls the onboarding hints: a fresh account landing on the default
// page gets both the new-user and onboarding flags, while one returning
// to a reconstructed support page gets only the onboarding preview. An
// anchored destination (explicit returnTo or stored pending signal) is
// preserved as captured, apart from the payment dialog hint.
func (d *Dispatcher) BuildURL(target *Target, isNewUser bool) string {
	u, err := url.Parse(target.Path)
	if err != nil {
		log.LogWarnWithFields("resume", "Unparseable target path, using default", map[string]any{
			"path": target.Path,
		})
		u = &url.URL{Path: "/"}
	}

	q := u.Query()
	if target.OpenPaymentDialog {
		q.Set("openPaymentDialog", "1")
		if target.Amount > 0 {
			q.Set("amount", strconv.Itoa(target.Amount))
		}
	}

	switch target.Source {
	case SourceDefault:
		if isNewUser {
			q.Set("newUser", "1")
			q.Set("previewOnboarding", "1")
		}
	case SourceReferer:
		if isNewUser {
			q.Set("previewOnboarding", "1")
		}
	}

	u.RawQuery = q.Encode()
	return d.siteBaseURL + u.String()
}

// Redirect sends the browser to the target with a 302 so the callback
// URL, with its credential material, never enters the history as a
// cacheable destination.
func (d *Dispatcher) Redirect(w http.ResponseWriter, r *http.Request, target *Target, isNewUser bool) {
	dest := d.BuildURL(target, isNewUser)
	log.LogInfoWithFields("resume", "Resuming journey", map[string]any{
		"source":   string(target.Source),
		"new_user": isNewUser,
	})
	http.Redirect(w, r, dest, http.StatusFound)
}
