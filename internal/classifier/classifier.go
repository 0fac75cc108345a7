// Package classifier maps failed exchange responses onto the shared error
// taxonomy.
package classifier

import (
	"regexp"
	"strings"

	"exchangeflow/models"
)

// Marker is one broad-match rule: a message containing Substring maps to
// Kind.
type Marker struct {
	Substring string
	Kind      models.ErrorKind
}

// Table is the per-exchange error catalog. Exact is keyed by vendor code or
// by full message. Broad is scanned in order.
type Table struct {
	Exact map[string]models.ErrorKind
	Broad []Marker
}

// Input describes one failed or flagged response.
type Input struct {
	Exchange string
	Status   int
	Code     string
	Message  string
	Body     string
}

var (
	unavailableRe = regexp.MustCompile(`(?i)(offline|busy|retry|wait|unavailable|maintain|maintenance|maintenancing)`)
	ddosRe        = regexp.MustCompile(`(?i)(cloudflare|incapsula|overload|ddos)`)
	maintenanceRe = regexp.MustCompile(`(?i)maint`)
)

var statusKinds = map[int]models.ErrorKind{
	400: models.KindBadRequest,
	401: models.KindAuthenticationError,
	402: models.KindAuthenticationError,
	403: models.KindPermissionDenied,
	404: models.KindBadRequest,
	429: models.KindRateLimitExceeded,
	500: models.KindExchangeError,
	502: models.KindExchangeNotAvailable,
	504: models.KindRequestTimeout,
}

// Match runs the exact and broad tables only. Broad markers are tried on
// the message first and then on the code, for vendors whose codes are
// names such as "insufficient_funds_bid".
func (t Table) Match(code, message string) (models.ErrorKind, bool) {
	if code != "" {
		if k, ok := t.Exact[code]; ok {
			return k, true
		}
	}
	if message != "" {
		if k, ok := t.Exact[message]; ok {
			return k, true
		}
	}
	for _, s := range []string{message, code} {
		if k, ok := t.matchBroad(s); ok {
			return k, true
		}
	}
	return 0, false
}

func (t Table) matchBroad(s string) (models.ErrorKind, bool) {
	if s == "" {
		return 0, false
	}
	for _, m := range t.Broad {
		if m.Substring != "" && strings.Contains(s, m.Substring) {
			return m.Kind, true
		}
	}
	return 0, false
}

// StatusKind maps an HTTP status to a kind. 503 is split on whether the
// body mentions maintenance, and unlisted error statuses fall back to body
// heuristics.
func StatusKind(status int, body string) (models.ErrorKind, bool) {
	if status == 503 {
		if maintenanceRe.MatchString(body) {
			return models.KindOnMaintenance, true
		}
		return models.KindExchangeNotAvailable, true
	}
	if k, ok := statusKinds[status]; ok {
		return k, true
	}
	if status < 400 {
		return 0, false
	}
	switch {
	case ddosRe.MatchString(body):
		return models.KindDDoSProtection, true
	case unavailableRe.MatchString(body):
		return models.KindExchangeNotAvailable, true
	}
	return 0, false
}

// Classify resolves in of a failed call into a typed error. Exact matches
// win over broad ones, broad over the status table. The raw body is searched
// for broad markers when no message was extracted. Anything left is an
// ExchangeError carrying the raw body. It never returns nil.
func (t Table) Classify(in Input) *models.Error {
	kind, ok := t.Match(in.Code, in.Message)
	if !ok && in.Message == "" {
		kind, ok = t.matchBroad(in.Body)
	}
	if !ok {
		kind, ok = StatusKind(in.Status, in.Body)
	}
	if !ok {
		kind = models.KindExchangeError
	}
	msg := in.Message
	if msg == "" {
		msg = in.Body
	}
	return &models.Error{
		Kind:     kind,
		Exchange: in.Exchange,
		Message:  msg,
		Status:   in.Status,
		Code:     in.Code,
		Body:     in.Body,
	}
}
