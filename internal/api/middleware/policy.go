package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"todo_service/internal/common"
	"todo_service/internal/domain/model"
	"todo_service/internal/platform/observability"

	"github.com/sirupsen/logrus"
)

type AccessLevel int

const (
	AccessPublic AccessLevel = iota
	AccessAuthenticated
	AccessRole
)

// Access is the requirement a rule places on the caller.
type Access struct {
	Level AccessLevel
	Role  model.Role
}

var (
	Public        = Access{Level: AccessPublic}
	Authenticated = Access{Level: AccessAuthenticated}
)

func RequireRole(role model.Role) Access {
	return Access{Level: AccessRole, Role: role}
}

func (a Access) String() string {
	switch a.Level {
	case AccessPublic:
		return "public"
	case AccessAuthenticated:
		return "authenticated"
	default:
		return "role:" + string(a.Role)
	}
}

// Rule binds a method and route pattern to an access requirement. An empty
// Method or "*" matches any method. In Pattern, "{name}" matches exactly one
// path segment and a trailing "**" matches the remainder, including nothing.
type Rule struct {
	Method  string
	Pattern string
	Access  Access
}

func (r Rule) matches(method string, segments []string) bool {
	if r.Method != "" && r.Method != "*" && !strings.EqualFold(r.Method, method) {
		return false
	}
	return matchSegments(splitPath(r.Pattern), segments)
}

// DefaultRules is the route security table of the service, most specific first.
func DefaultRules() []Rule {
	return []Rule{
		{Method: http.MethodPost, Pattern: "/api/auth/register", Access: Public},
		{Method: http.MethodPost, Pattern: "/api/auth/login", Access: Public},
		{Method: http.MethodGet, Pattern: "/health", Access: Public},
		{Method: http.MethodGet, Pattern: "/metrics", Access: Public},
		{Method: "*", Pattern: "/api/admin/**", Access: RequireRole(model.RoleAdmin)},
		{Method: "*", Pattern: "/api/users/**", Access: Authenticated},
		{Method: "*", Pattern: "/api/todos/**", Access: Authenticated},
		{Method: "*", Pattern: "/api/**", Access: Authenticated},
	}
}

// Policy is an ordered rule table; the first matching rule decides. Requests
// that match no rule are denied.
type Policy struct {
	rules   []Rule
	log     *logrus.Logger
	metrics *observability.Metrics
}

func NewPolicy(rules []Rule, log *logrus.Logger, metrics *observability.Metrics) *Policy {
	return &Policy{
		rules:   append([]Rule(nil), rules...),
		log:     log,
		metrics: metrics,
	}
}

// Rules returns a copy of the table.
func (p *Policy) Rules() []Rule {
	return append([]Rule(nil), p.rules...)
}

// Decide returns nil when principal may call method on path, an
// ErrUnauthorized-wrapped error when the caller must authenticate first, and
// an ErrForbidden-wrapped error otherwise. A nil principal is anonymous.
func (p *Policy) Decide(method, path string, principal *model.Principal) error {
	segments := splitPath(path)
	for _, rule := range p.rules {
		if !rule.matches(method, segments) {
			continue
		}
		switch rule.Access.Level {
		case AccessPublic:
			return nil
		case AccessAuthenticated:
			if principal == nil {
				return fmt.Errorf("authentication required: %w", common.ErrUnauthorized)
			}
			return nil
		default:
			if principal == nil {
				return fmt.Errorf("authentication required: %w", common.ErrUnauthorized)
			}
			if !principal.HasRole(rule.Access.Role) {
				return fmt.Errorf("access denied: %w", common.ErrForbidden)
			}
			return nil
		}
	}

	if principal == nil {
		return fmt.Errorf("authentication required: %w", common.ErrUnauthorized)
	}
	return fmt.Errorf("access denied: %w", common.ErrForbidden)
}

// Gate enforces the policy before any handler runs.
func (p *Policy) Gate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, _ := GetPrincipalFromContext(r.Context())
		err := p.Decide(r.Method, r.URL.Path, principal)
		switch {
		case err == nil:
			p.metrics.ObserveDecision("allowed")
			next.ServeHTTP(w, r)
		case errors.Is(err, common.ErrUnauthorized):
			p.metrics.ObserveDecision("unauthenticated")
			common.RespondUnauthorized(w)
		default:
			p.metrics.ObserveDecision("forbidden")
			p.log.WithFields(logrus.Fields{
				"method":  r.Method,
				"path":    r.URL.Path,
				"subject": principal.Email,
			}).Warn("access denied")
			common.RespondWithDomainError(w, err)
		}
	})
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func matchSegments(pattern, path []string) bool {
	for i, seg := range pattern {
		if seg == "**" && i == len(pattern)-1 {
			return true
		}
		if i >= len(path) {
			return false
		}
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			if path[i] == "" {
				return false
			}
			continue
		}
		if seg != path[i] {
			return false
		}
	}
	return len(pattern) == len(path)
}
