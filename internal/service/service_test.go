package service

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmynk/hisaab/internal/auth"
	"github.com/mmynk/hisaab/internal/events"
	"github.com/mmynk/hisaab/internal/metrics"
	"github.com/mmynk/hisaab/internal/middleware"
	"github.com/mmynk/hisaab/internal/storage/sqlite"
	"github.com/mmynk/hisaab/pkg/api"
	"github.com/mmynk/hisaab/pkg/api/apiconnect"
)

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []*events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e *events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type testEnv struct {
	server    *httptest.Server
	store     *sqlite.SQLiteStore
	metrics   *metrics.Metrics
	publisher *recordingPublisher

	auth      *apiconnect.AuthServiceClient
	groups    *apiconnect.GroupServiceClient
	expenses  *apiconnect.ExpenseServiceClient
	analytics *apiconnect.AnalyticsServiceClient
}

// testUser is a registered account and its bearer token.
type testUser struct {
	ID    string
	Email string
	Name  string
	Token string
}

// setupTestServer wires every service behind the production interceptor
// chain, on a temp-file SQLite database.
func setupTestServer(t *testing.T) *testEnv {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()
	publisher := &recordingPublisher{}
	jwtManager := auth.NewJWTManager("test-secret", time.Hour)
	authenticator := auth.NewPasswordAuthenticatorWithCost(store, bcrypt.MinCost)

	interceptors := connect.WithInterceptors(
		m.Interceptor(),
		middleware.RequireAuth(jwtManager, apiconnect.PublicProcedures...),
		middleware.LoggingInterceptor(logger),
	)

	analytics := NewAnalyticsService(store, logger)

	mux := http.NewServeMux()
	mux.Handle(apiconnect.NewAuthServiceHandler(NewAuthService(authenticator, jwtManager, store, logger), interceptors))
	mux.Handle(apiconnect.NewGroupServiceHandler(NewGroupService(store, m, logger), interceptors))
	mux.Handle(apiconnect.NewExpenseServiceHandler(NewExpenseService(store, publisher, m, logger), interceptors))
	mux.Handle(apiconnect.NewAnalyticsServiceHandler(analytics, interceptors))
	NewExportHandler(analytics, logger).Register(mux, func(h http.Handler) http.Handler {
		return middleware.Authenticate(jwtManager, h)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(func() {
		server.Close()
		store.Close()
	})

	return &testEnv{
		server:    server,
		store:     store,
		metrics:   m,
		publisher: publisher,
		auth:      apiconnect.NewAuthServiceClient(http.DefaultClient, server.URL),
		groups:    apiconnect.NewGroupServiceClient(http.DefaultClient, server.URL),
		expenses:  apiconnect.NewExpenseServiceClient(http.DefaultClient, server.URL),
		analytics: apiconnect.NewAnalyticsServiceClient(http.DefaultClient, server.URL),
	}
}

// withToken wraps msg in a request carrying the bearer token.
func withToken[T any](token string, msg *T) *connect.Request[T] {
	req := connect.NewRequest(msg)
	req.Header().Set("Authorization", "Bearer "+token)
	return req
}

func (e *testEnv) register(t *testing.T, name, email string) *testUser {
	t.Helper()

	resp, err := e.auth.Register(context.Background(), connect.NewRequest(&api.RegisterRequest{
		Email:       email,
		DisplayName: name,
		Password:    "password123",
	}))
	require.NoError(t, err)

	return &testUser{ID: resp.Msg.User.ID, Email: email, Name: name, Token: resp.Msg.Token}
}

func (e *testEnv) createGroup(t *testing.T, creator *testUser, name string, members ...*testUser) *api.Group {
	t.Helper()

	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	resp, err := e.groups.CreateGroup(context.Background(), withToken(creator.Token, &api.CreateGroupRequest{
		Name:      name,
		MemberIDs: ids,
	}))
	require.NoError(t, err)
	return resp.Msg.Group
}

func (e *testEnv) createExpense(t *testing.T, caller *testUser, req *api.CreateExpenseRequest) *api.Expense {
	t.Helper()

	resp, err := e.expenses.CreateExpense(context.Background(), withToken(caller.Token, req))
	require.NoError(t, err)
	return resp.Msg.Expense
}

func requireCode(t *testing.T, err error, code connect.Code) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, connect.CodeOf(err), "error: %v", err)
}

// counterValue reads an unlabelled counter from the registry.
func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			require.Len(t, f.GetMetric(), 1)
			return f.GetMetric()[0].GetCounter().GetValue()
		}
	}
	return 0
}
