package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lakany/clinic-api/internal/handler"
	appointmenthandler "github.com/lakany/clinic-api/internal/handler/appointment"
	authhandler "github.com/lakany/clinic-api/internal/handler/auth"
	"github.com/lakany/clinic-api/internal/handler/health"
	"github.com/lakany/clinic-api/internal/middleware"
	"github.com/lakany/clinic-api/internal/model"
	"github.com/lakany/clinic-api/internal/policy"
	"github.com/lakany/clinic-api/internal/repository/memory"
	"github.com/lakany/clinic-api/internal/service/appointment"
	"github.com/lakany/clinic-api/internal/service/audit"
	authsvc "github.com/lakany/clinic-api/internal/service/auth"
	"github.com/lakany/clinic-api/internal/service/event"
	"github.com/lakany/clinic-api/pkg/auth"
	apperrors "github.com/lakany/clinic-api/pkg/errors"
	"github.com/lakany/clinic-api/pkg/metrics"
	"github.com/lakany/clinic-api/pkg/security"
)

type okPinger struct{}

func (okPinger) PingContext(context.Context) error { return nil }

func newEngine(t *testing.T) (*gin.Engine, *memory.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hasher := security.NewBcryptHasher(4)
	hash, err := hasher.Hash("s3cret-pass")
	require.NoError(t, err)

	store := memory.NewStore()
	store.AddUser(&model.User{Username: "dr.lakany", Email: "dr@example.com", PasswordHash: hash, Role: model.RoleDoctor})
	store.AddUser(&model.User{Username: "mona", Email: "mona@example.com", PasswordHash: hash, Role: model.RolePatient})

	m := metrics.New("test", nil)
	authService := authsvc.NewService(store.Users(), auth.NewJWTService("secret", "clinic-api", time.Hour), hasher)
	apptService := appointment.NewService(store.Appointments(), store.Users(), audit.NewService(store.Audits()),
		event.NewService(store.Outbox()), m, appointment.Config{})

	r := NewRouter(
		authService,
		appointmenthandler.NewHandler(apptService),
		authhandler.NewHandler(authService),
		health.NewHandler(okPinger{}, prometheus.NewRegistry()),
		m,
		RouterConfig{RequestTimeout: 5 * time.Second},
	)
	return r.Setup(), store
}

func call(t *testing.T, e *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	return w
}

func login(t *testing.T, e *gin.Engine, email string) model.TokenResponse {
	t.Helper()
	w := call(t, e, http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": email, "password": "s3cret-pass"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var env struct {
		Data model.TokenResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env.Data
}

func TestLoginThenBook(t *testing.T) {
	e, store := newEngine(t)
	patient := login(t, e, "mona@example.com")
	assert.Equal(t, model.RolePatient, patient.Role)

	users := store.Users()
	doctor, err := users.FirstByRole(context.Background(), model.RoleDoctor)
	require.NoError(t, err)

	w := call(t, e, http.MethodPost, "/api/v1/appointments", patient.AccessToken, gin.H{
		"doctor_id": doctor.ID,
		"date":      "2024-05-01T10:00:00Z",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderXRequestID))

	w = call(t, e, http.MethodGet, "/api/v1/appointments/my-appointments", patient.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"results":1`)
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	e, _ := newEngine(t)

	for _, token := range []string{"", "garbage"} {
		w := call(t, e, http.MethodGet, "/api/v1/appointments/my-appointments", token, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), `"success":false`)
	}
}

func TestPublicRoutes(t *testing.T) {
	e, _ := newEngine(t)

	w := call(t, e, http.MethodGet, "/api/v1/appointments/clinic-status", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"status":"open","message":"Clinic is operational"}`, w.Body.String())

	w = call(t, e, http.MethodGet, "/api/v1/health/live", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = call(t, e, http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "mona@example.com", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), authsvc.InvalidCredentialsMessage)

	w = call(t, e, http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// slowHandler waits out the request deadline and reports it as a storage failure
type slowHandler struct{}

func (slowHandler) RegisterRoutes(g *gin.RouterGroup) {
	g.GET("/slow", func(c *gin.Context) {
		<-c.Request.Context().Done()
		handler.Fail(c, apperrors.Internal(c.Request.Context().Err()))
	})
}

func (slowHandler) RegisterPublicRoutes(*gin.RouterGroup) {}

type noRoutes struct{}

func (noRoutes) RegisterRoutes(*gin.RouterGroup) {}

type staticAuth struct{}

func (staticAuth) Authenticate(context.Context, string) (policy.Identity, error) {
	return policy.Identity{ID: uuid.New(), Role: policy.RolePatient}, nil
}

func TestExpiredRequestAnswersGatewayTimeout(t *testing.T) {
	gin.SetMode(gin.TestMode)
	e := NewRouter(
		staticAuth{},
		slowHandler{},
		noRoutes{},
		health.NewHandler(okPinger{}, prometheus.NewRegistry()),
		metrics.New("test", nil),
		RouterConfig{RequestTimeout: 20 * time.Millisecond},
	).Setup()

	w := call(t, e, http.MethodGet, "/api/v1/slow", "any", nil)
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.JSONEq(t, `{"success":false,"message":"Request timeout"}`, w.Body.String())
}
