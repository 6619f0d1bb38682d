package authzkit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubAccess is an in-memory AccessChecker and CheckerLoader for
// middleware tests.
type stubAccess struct {
	decisions  map[string]Decision
	err        error
	checker    *Checker
	checkerErr error
}

func (s *stubAccess) Check(ctx context.Context, userID, permissionCode, orgID string) (Decision, error) {
	if s.err != nil {
		return Decision{}, s.err
	}
	if d, ok := s.decisions[permissionCode]; ok {
		return d, nil
	}
	return Deny(ReasonNoGrantDefaultDeny), nil
}

func (s *stubAccess) GetChecker(ctx context.Context, userID string) (*Checker, error) {
	return s.checker, s.checkerErr
}

func newStubMiddleware(stub *stubAccess, opts ...MiddlewareOption) *Middleware {
	m := &Middleware{
		checker:      stub,
		loader:       stub,
		getUserID:    defaultGetUserID,
		errorHandler: defaultErrorHandler,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TestMiddlewareNewMiddleware tests the middleware constructor
func TestMiddlewareNewMiddleware(t *testing.T) {
	service := &Service{}

	mw := NewMiddleware(service)
	require.NotNil(t, mw)
	assert.NotNil(t, mw.getUserID)
	assert.NotNil(t, mw.errorHandler)

	customUserID := func(r *http.Request) string { return "custom-user" }
	customErrorHandler := func(w http.ResponseWriter, r *http.Request, err error) {
		w.WriteHeader(http.StatusTeapot)
	}

	mw2 := NewMiddleware(service,
		WithUserIDExtractor(customUserID),
		WithErrorHandler(customErrorHandler),
	)
	req := httptest.NewRequest("GET", "/", nil)
	assert.Equal(t, "custom-user", mw2.getUserID(req))

	w := httptest.NewRecorder()
	mw2.errorHandler(w, req, nil)
	assert.Equal(t, http.StatusTeapot, w.Code)
}

// TestMiddlewareDefaultGetUserID tests the default user ID extractor
func TestMiddlewareDefaultGetUserID(t *testing.T) {
	ctx := WithUserID(context.Background(), "test-user")
	req := httptest.NewRequest("GET", "/", nil)
	req = req.WithContext(ctx)
	assert.Equal(t, "test-user", defaultGetUserID(req))

	req = httptest.NewRequest("GET", "/", nil)
	assert.Empty(t, defaultGetUserID(req))
}

// TestMiddlewareDefaultErrorHandler tests status mapping in the default handler
func TestMiddlewareDefaultErrorHandler(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "Denied decision",
			err:            NewError(errDenied, "explicit_deny"),
			expectedStatus: http.StatusForbidden,
			expectedBody:   "Forbidden\n",
		},
		{
			name:           "Missing user",
			err:            ErrNoUserID,
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   "Unauthorized\n",
		},
		{
			name:           "Invalid scope error",
			err:            NewError(ErrInvalidScope, "organization ID not found"),
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "Bad Request\n",
		},
		{
			name:           "Generic error",
			err:            NewError(ErrDatabaseError, "boom"),
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   "Internal Server Error\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest("GET", "/", nil)

			defaultErrorHandler(w, req, tt.err)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, tt.expectedBody, w.Body.String())
		})
	}
}

// TestMiddlewareOrgExtractors tests all organization extractor functions
func TestMiddlewareOrgExtractors(t *testing.T) {
	t.Run("OrgFromParam", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/orgs/org123/chats", nil)
		req.SetPathValue("orgID", "org123")

		orgID, err := OrgFromParam("orgID")(req)
		assert.NoError(t, err)
		assert.Equal(t, "org123", orgID)

		req = httptest.NewRequest("GET", "/orgs", nil)
		_, err = OrgFromParam("orgID")(req)
		assert.True(t, IsInvalidScope(err))
	})

	t.Run("OrgFromHeader", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-Organization-ID", "org123")

		orgID, err := OrgFromHeader("X-Organization-ID")(req)
		assert.NoError(t, err)
		assert.Equal(t, "org123", orgID)

		req = httptest.NewRequest("GET", "/", nil)
		_, err = OrgFromHeader("X-Organization-ID")(req)
		assert.True(t, IsInvalidScope(err))
	})

	t.Run("OrgFromQuery", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/?org=org123", nil)

		orgID, err := OrgFromQuery("org")(req)
		assert.NoError(t, err)
		assert.Equal(t, "org123", orgID)

		req = httptest.NewRequest("GET", "/", nil)
		_, err = OrgFromQuery("org")(req)
		assert.True(t, IsInvalidScope(err))
	})

	t.Run("GlobalContext", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)

		orgID, err := GlobalContext()(req)
		assert.NoError(t, err)
		assert.Empty(t, orgID)
	})
}

// TestMiddlewareRequirePermission tests the permission guard
func TestMiddlewareRequirePermission(t *testing.T) {
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("Allowed", func(t *testing.T) {
		stub := &stubAccess{decisions: map[string]Decision{"chats.handle": Allow("role-1")}}
		mw := newStubMiddleware(stub)

		handler := mw.RequirePermission("chats.handle", GlobalContext())(okHandler)

		req := httptest.NewRequest("GET", "/", nil)
		req = req.WithContext(WithUserID(req.Context(), "user-1"))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Denied", func(t *testing.T) {
		stub := &stubAccess{}
		mw := newStubMiddleware(stub)

		handler := mw.RequirePermission("chats.handle", GlobalContext())(okHandler)

		req := httptest.NewRequest("GET", "/", nil)
		req = req.WithContext(WithUserID(req.Context(), "user-1"))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("Missing user", func(t *testing.T) {
		stub := &stubAccess{decisions: map[string]Decision{"chats.handle": Allow("role-1")}}
		mw := newStubMiddleware(stub)

		handler := mw.RequirePermission("chats.handle", GlobalContext())(okHandler)

		req := httptest.NewRequest("GET", "/", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Extractor failure", func(t *testing.T) {
		stub := &stubAccess{decisions: map[string]Decision{"chats.handle": Allow("role-1")}}
		mw := newStubMiddleware(stub)

		handler := mw.RequirePermission("chats.handle", OrgFromHeader("X-Organization-ID"))(okHandler)

		req := httptest.NewRequest("GET", "/", nil)
		req = req.WithContext(WithUserID(req.Context(), "user-1"))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Resolver error", func(t *testing.T) {
		stub := &stubAccess{err: NewError(ErrDatabaseError, "connection refused")}
		mw := newStubMiddleware(stub)

		handler := mw.RequirePermission("chats.handle", GlobalContext())(okHandler)

		req := httptest.NewRequest("GET", "/", nil)
		req = req.WithContext(WithUserID(req.Context(), "user-1"))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

// TestMiddlewareRequireAnyPermission tests the any-of permission guard
func TestMiddlewareRequireAnyPermission(t *testing.T) {
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	stub := &stubAccess{decisions: map[string]Decision{"billing.view": Allow("role-1")}}
	mw := newStubMiddleware(stub)

	t.Run("One allowed", func(t *testing.T) {
		handler := mw.RequireAnyPermission([]string{"users.delete", "billing.view"}, GlobalContext())(okHandler)

		req := httptest.NewRequest("GET", "/", nil)
		req = req.WithContext(WithUserID(req.Context(), "user-1"))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("None allowed", func(t *testing.T) {
		handler := mw.RequireAnyPermission([]string{"users.delete", "users.manage"}, GlobalContext())(okHandler)

		req := httptest.NewRequest("GET", "/", nil)
		req = req.WithContext(WithUserID(req.Context(), "user-1"))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

// TestMiddlewareLoadChecker tests checker injection
func TestMiddlewareLoadChecker(t *testing.T) {
	checker := NewChecker(NewSnapshot("user-1", time.Now(), nil, nil, nil, nil))

	t.Run("Loads checker into context", func(t *testing.T) {
		stub := &stubAccess{checker: checker}
		mw := newStubMiddleware(stub)

		var got *Checker
		handler := mw.LoadChecker()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = FromContext(r.Context())
		}))

		req := httptest.NewRequest("GET", "/", nil)
		req = req.WithContext(WithUserID(req.Context(), "user-1"))
		handler.ServeHTTP(httptest.NewRecorder(), req)

		assert.Same(t, checker, got)
	})

	t.Run("No user continues without checker", func(t *testing.T) {
		stub := &stubAccess{checker: checker}
		mw := newStubMiddleware(stub)

		var got *Checker
		called := false
		handler := mw.LoadChecker()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			got = FromContext(r.Context())
		}))

		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

		assert.True(t, called)
		assert.Nil(t, got)
	})

	t.Run("Loader failure continues without checker", func(t *testing.T) {
		stub := &stubAccess{checkerErr: NewError(ErrDatabaseError, "down")}
		mw := newStubMiddleware(stub)

		var got *Checker
		handler := mw.LoadChecker()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = FromContext(r.Context())
		}))

		req := httptest.NewRequest("GET", "/", nil)
		req = req.WithContext(WithUserID(req.Context(), "user-1"))
		handler.ServeHTTP(httptest.NewRecorder(), req)

		assert.Nil(t, got)
	})
}

// TestMiddlewareInjectAuditContext tests request metadata extraction
func TestMiddlewareInjectAuditContext(t *testing.T) {
	mw := newStubMiddleware(&stubAccess{})

	var captured AuditContext
	handler := mw.InjectAuditContext()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = GetAuditContext(r.Context())
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	req.Header.Set("User-Agent", "curl/8.0")
	req.Header.Set("X-Request-ID", "req-42")
	req = req.WithContext(WithUserID(req.Context(), "user-1"))

	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "203.0.113.9", captured.IPAddress)
	assert.Equal(t, "curl/8.0", captured.UserAgent)
	assert.Equal(t, "req-42", captured.RequestID)
	assert.Equal(t, "user-1", captured.ActorID)
}

// TestMiddlewareInjectAuditContextFallbacks tests IP source precedence
func TestMiddlewareInjectAuditContextFallbacks(t *testing.T) {
	mw := newStubMiddleware(&stubAccess{})

	var ip string
	handler := mw.InjectAuditContext()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip = GetIPAddress(r.Context())
	}))

	t.Run("X-Real-IP when no X-Forwarded-For", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-Real-IP", "198.51.100.7")
		handler.ServeHTTP(httptest.NewRecorder(), req)
		assert.Equal(t, "198.51.100.7", ip)
	})

	t.Run("RemoteAddr as last resort", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		handler.ServeHTTP(httptest.NewRecorder(), req)
		assert.Equal(t, req.RemoteAddr, ip)
	})
}
