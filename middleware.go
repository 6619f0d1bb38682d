package authzkit

import (
	"context"
	"errors"
	"net/http"
)

// Middleware provides HTTP middleware guarding handlers behind the resolver.
// Every protected route calls Check before its handler runs.
type Middleware struct {
	checker      AccessChecker
	loader       CheckerLoader
	getUserID    func(*http.Request) string
	errorHandler func(http.ResponseWriter, *http.Request, error)
}

// CheckerLoader loads a per-request Checker so handlers can run many checks
// against one snapshot. *Service implements it.
type CheckerLoader interface {
	GetChecker(ctx context.Context, userID string) (*Checker, error)
}

// MiddlewareOption configures the Middleware.
type MiddlewareOption func(*Middleware)

// NewMiddleware creates a new Middleware instance.
//
// Example:
//
//	mw := authzkit.NewMiddleware(service,
//	    authzkit.WithUserIDExtractor(func(r *http.Request) string {
//	        return r.Context().Value("user_id").(string)
//	    }),
//	)
func NewMiddleware(service *Service, opts ...MiddlewareOption) *Middleware {
	m := &Middleware{
		checker:      service,
		loader:       service,
		getUserID:    defaultGetUserID,
		errorHandler: defaultErrorHandler,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// WithUserIDExtractor sets a custom function to extract user ID from request.
func WithUserIDExtractor(fn func(*http.Request) string) MiddlewareOption {
	return func(m *Middleware) {
		m.getUserID = fn
	}
}

// WithErrorHandler sets a custom error handler for middleware.
func WithErrorHandler(fn func(http.ResponseWriter, *http.Request, error)) MiddlewareOption {
	return func(m *Middleware) {
		m.errorHandler = fn
	}
}

func defaultGetUserID(r *http.Request) string {
	return GetUserID(r.Context())
}

// errDenied is the sentinel the default error handler maps to 403.
var errDenied = errors.New("authzkit: denied")

func defaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errDenied):
		http.Error(w, "Forbidden", http.StatusForbidden)
	case errors.Is(err, ErrNoUserID):
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	case errors.Is(err, ErrInvalidScope):
		http.Error(w, "Bad Request", http.StatusBadRequest)
	default:
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// OrgExtractor extracts the organization context from an HTTP request.
// Returns an empty string for global-context checks.
type OrgExtractor func(*http.Request) (string, error)

// OrgFromParam creates an OrgExtractor that reads the organization ID from a
// URL path parameter.
//
// Example:
//
//	// For route /orgs/{orgID}/chats
//	mw.RequirePermission("chats.handle", authzkit.OrgFromParam("orgID"))
func OrgFromParam(paramName string) OrgExtractor {
	return func(r *http.Request) (string, error) {
		orgID := r.PathValue(paramName)
		if orgID == "" {
			return "", NewError(ErrInvalidScope, "organization ID not found in request")
		}
		return orgID, nil
	}
}

// OrgFromHeader creates an OrgExtractor that reads the organization ID from
// a header.
//
// Example:
//
//	// For header X-Organization-ID: org_123
//	mw.RequirePermission("users.manage", authzkit.OrgFromHeader("X-Organization-ID"))
func OrgFromHeader(headerName string) OrgExtractor {
	return func(r *http.Request) (string, error) {
		orgID := r.Header.Get(headerName)
		if orgID == "" {
			return "", NewError(ErrInvalidScope, "organization ID not found in header")
		}
		return orgID, nil
	}
}

// OrgFromQuery creates an OrgExtractor that reads the organization ID from a
// query parameter.
func OrgFromQuery(queryParam string) OrgExtractor {
	return func(r *http.Request) (string, error) {
		orgID := r.URL.Query().Get(queryParam)
		if orgID == "" {
			return "", NewError(ErrInvalidScope, "organization ID not found in query")
		}
		return orgID, nil
	}
}

// GlobalContext is an OrgExtractor for routes evaluated in the global tier.
func GlobalContext() OrgExtractor {
	return func(r *http.Request) (string, error) {
		return "", nil
	}
}

// RequirePermission creates middleware that requires an allow decision on a
// permission code before the handler runs. Denials of any flavor (explicit
// deny, default deny, scope mismatch) are rejected alike.
//
// Example:
//
//	router.Handle("/orgs/{orgID}/chats",
//	    mw.RequirePermission("chats.handle", authzkit.OrgFromParam("orgID"))(chatHandler))
func (m *Middleware) RequirePermission(permission string, extractor OrgExtractor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			userID := m.getUserID(r)
			if userID == "" {
				m.errorHandler(w, r, ErrNoUserID)
				return
			}

			orgID, err := extractor(r)
			if err != nil {
				m.errorHandler(w, r, err)
				return
			}

			decision, err := m.checker.Check(ctx, userID, permission, orgID)
			if err != nil {
				m.errorHandler(w, r, err)
				return
			}
			if !decision.Allowed {
				m.errorHandler(w, r, NewError(errDenied, string(decision.Reason)).
					WithPermission(permission).
					WithUser(userID).
					WithOrganization(orgID))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAnyPermission creates middleware that requires an allow decision on
// at least one of the permission codes.
func (m *Middleware) RequireAnyPermission(permissions []string, extractor OrgExtractor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			userID := m.getUserID(r)
			if userID == "" {
				m.errorHandler(w, r, ErrNoUserID)
				return
			}

			orgID, err := extractor(r)
			if err != nil {
				m.errorHandler(w, r, err)
				return
			}

			for _, permission := range permissions {
				decision, err := m.checker.Check(ctx, userID, permission, orgID)
				if err != nil {
					m.errorHandler(w, r, err)
					return
				}
				if decision.Allowed {
					next.ServeHTTP(w, r)
					return
				}
			}

			m.errorHandler(w, r, NewError(errDenied, "no permission allowed").
				WithUser(userID).
				WithOrganization(orgID))
		})
	}
}

// LoadChecker creates middleware that loads the user's Checker into context.
// Use this when the handler runs several checks itself: one snapshot serves
// them all instead of one query per check.
//
// Example:
//
//	router.Handle("/dashboard", mw.LoadChecker()(dashboardHandler))
//
//	func dashboardHandler(w http.ResponseWriter, r *http.Request) {
//	    checker := authzkit.FromContext(r.Context())
//	    if checker != nil && checker.Allowed("billing.view", orgID) {
//	        // Show billing widgets
//	    }
//	}
func (m *Middleware) LoadChecker() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			userID := m.getUserID(r)
			if userID == "" {
				// No user, continue without checker
				next.ServeHTTP(w, r)
				return
			}

			checker, err := m.loader.GetChecker(ctx, userID)
			if err != nil {
				// Continue without checker; handlers must treat nil as denied
				next.ServeHTTP(w, r)
				return
			}

			ctx = WithChecker(ctx, checker)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// InjectAuditContext creates middleware that extracts audit information from
// the request and adds it to the context, so mutations performed by the
// handler are attributed correctly.
//
// Example:
//
//	handler = mw.InjectAuditContext()(handler)
func (m *Middleware) InjectAuditContext() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			// Extract IP address
			ip := r.Header.Get("X-Forwarded-For")
			if ip == "" {
				ip = r.Header.Get("X-Real-IP")
			}
			if ip == "" {
				ip = r.RemoteAddr
			}
			ctx = WithIPAddress(ctx, ip)

			// Extract User Agent
			ctx = WithUserAgent(ctx, r.UserAgent())

			// Extract Request ID (commonly set by other middleware)
			requestID := r.Header.Get("X-Request-ID")
			if requestID != "" {
				ctx = WithRequestID(ctx, requestID)
			}

			// Set actor ID from user ID if available
			userID := m.getUserID(r)
			if userID != "" {
				ctx = WithActorID(ctx, userID)
				ctx = WithUserID(ctx, userID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
