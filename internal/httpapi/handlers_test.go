package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cityinfo.org/internal/auth"
	"cityinfo.org/internal/cityinfo"
	"cityinfo.org/internal/notify"
)

var testTokenConfig = auth.TokenConfig{
	Secret:   []byte("test-secret-test-secret-test-secret"),
	Issuer:   "https://localhost:7169",
	Audience: "cityinfoapi",
	TTL:      time.Hour,
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (n *recordingNotifier) Notify(msg notify.Message) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return true
}

func (n *recordingNotifier) messages() []notify.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Message(nil), n.msgs...)
}

type apiClient struct {
	baseURL  string
	client   *http.Client
	t        *testing.T
	store    *cityinfo.InMemory
	notifier *recordingNotifier
}

func newTestAPI(t *testing.T, cities ...cityinfo.City) *apiClient {
	t.Helper()
	if len(cities) == 0 {
		cities = cityinfo.SeedCities()
	}

	issuer, err := auth.NewIssuer(auth.DemoIdentitySource{Tenant: auth.DefaultTenant}, testTokenConfig)
	require.NoError(t, err)
	verifier, err := auth.NewVerifier(testTokenConfig)
	require.NoError(t, err)
	policies, err := auth.NewEvaluator(auth.TenantPolicy(auth.PolicyMustBeFromCity, auth.DefaultTenant))
	require.NoError(t, err)

	store := cityinfo.NewInMemory(cities...)
	notifier := &recordingNotifier{}
	api := New(Deps{
		Issuer:   issuer,
		Verifier: verifier,
		Policies: policies,
		Store:    store,
		Notifier: notifier,
		Version:  "test",
	}, WithRateLimit(100, 100))

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL:  srv.URL,
		client:   srv.Client(),
		t:        t,
		store:    store,
		notifier: notifier,
	}
}

func (c *apiClient) do(method, path string, body any, token string) *http.Response {
	c.t.Helper()
	var payload io.Reader
	if body != nil {
		raw, ok := body.(json.RawMessage)
		if !ok {
			var err error
			raw, err = json.Marshal(body)
			if err != nil {
				c.t.Fatalf("marshal body: %v", err)
			}
		}
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.baseURL+path, payload)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) get(path string, params url.Values, token string) *http.Response {
	c.t.Helper()
	if params != nil {
		path += "?" + params.Encode()
	}
	return c.do(http.MethodGet, path, nil, token)
}

func (c *apiClient) obtainToken(userName string) string {
	c.t.Helper()
	resp := c.do(http.MethodPost, "/api/authentication/authenticate", auth.Credential{UserName: userName, Password: "irrelevant"}, "")
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("unexpected token status: %d", resp.StatusCode)
	}
	token := decode[string](c.t, resp)
	if token == "" {
		c.t.Fatalf("empty token issued")
	}
	return token
}

// tokenFor mints a token for an arbitrary tenant with the shared test key.
func tokenFor(t *testing.T, tenant string, opts ...auth.Option) string {
	t.Helper()
	issuer, err := auth.NewIssuer(auth.DemoIdentitySource{Tenant: tenant}, testTokenConfig, opts...)
	require.NoError(t, err)
	tok, err := issuer.Issue(context.Background(), auth.Credential{UserName: "someone"})
	require.NoError(t, err)
	return tok.Raw
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

type errorBody struct {
	Error     string            `json:"error"`
	RequestID string            `json:"request_id"`
	Errors    []json.RawMessage `json:"errors"`
}

func TestAuthenticateIssuesAntwerpToken(t *testing.T) {
	c := newTestAPI(t)
	token := c.obtainToken("kevin")

	verifier, err := auth.NewVerifier(testTokenConfig)
	require.NoError(t, err)
	claims, err := verifier.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "Antwerp", claims.Tenant())
	assert.Equal(t, "kevin", claims.UserName())
	id, ok := claims.UserID()
	assert.True(t, ok)
	assert.Equal(t, 1, id)
}

func TestAuthenticateRejectsBadRequests(t *testing.T) {
	c := newTestAPI(t)

	resp := c.do(http.MethodPost, "/api/authentication/authenticate", auth.Credential{UserName: "  "}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("WWW-Authenticate"))
	resp.Body.Close()

	resp = c.do(http.MethodPost, "/api/authentication/authenticate", json.RawMessage(`{"userName":"kevin","extra":1}`), "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = c.do(http.MethodGet, "/api/authentication/authenticate", nil, "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	resp.Body.Close()
}

func TestCitiesRequireValidToken(t *testing.T) {
	c := newTestAPI(t)

	cases := map[string]string{
		"missing":  "",
		"garbage":  "not-a-token",
		"expired":  tokenFor(t, "Antwerp", auth.WithClock(func() time.Time { return time.Now().Add(-2 * time.Hour) })),
		"tampered": tokenFor(t, "Antwerp") + "x",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			resp := c.get("/api/cities", nil, token)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Contains(t, resp.Header.Get("WWW-Authenticate"), "Bearer")
			body := decode[errorBody](t, resp)
			assert.NotEmpty(t, body.Error)
			assert.NotEmpty(t, body.RequestID)
		})
	}

	resp := c.get("/api/cities", nil, tokenFor(t, "Antwerp", auth.WithClock(func() time.Time { return time.Now().Add(-2 * time.Hour) })))
	assert.Equal(t, "token expired", decode[errorBody](t, resp).Error)
}

func TestListCitiesClampsPageSize(t *testing.T) {
	cities := make([]cityinfo.City, 0, 25)
	for i := 1; i <= 25; i++ {
		cities = append(cities, cityinfo.City{ID: i, Name: fmt.Sprintf("City %02d", i)})
	}
	c := newTestAPI(t, cities...)
	token := c.obtainToken("kevin")

	resp := c.get("/api/cities", url.Values{"pageSize": {"50"}}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var meta cityinfo.PaginationMetadata
	require.NoError(t, json.Unmarshal([]byte(resp.Header.Get("X-Pagination")), &meta))
	assert.Equal(t, cityinfo.PaginationMetadata{TotalItemCount: 25, PageSize: 20, CurrentPage: 1, TotalPageCount: 2}, meta)

	items := decode[[]cityinfo.CityWithoutPointsOfInterestDto](t, resp)
	assert.Len(t, items, 20)

	resp = c.get("/api/cities", url.Values{"pageNumber": {"2"}, "pageSize": {"20"}}, token)
	assert.Len(t, decode[[]cityinfo.CityWithoutPointsOfInterestDto](t, resp), 5)

	for _, bad := range []url.Values{{"pageNumber": {"abc"}}, {"pageSize": {"0"}}, {"pageNumber": {"-1"}}} {
		resp = c.get("/api/cities", bad, token)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "params %v", bad)
		resp.Body.Close()
	}
}

func TestListCitiesFilters(t *testing.T) {
	c := newTestAPI(t)
	token := c.obtainToken("kevin")

	resp := c.get("/api/cities", url.Values{"name": {"ANTW"}}, token)
	items := decode[[]cityinfo.CityWithoutPointsOfInterestDto](t, resp)
	require.Len(t, items, 1)
	assert.Equal(t, "Antwerp", items[0].Name)

	resp = c.get("/api/cities", url.Values{"searchQuery": {"tower"}}, token)
	items = decode[[]cityinfo.CityWithoutPointsOfInterestDto](t, resp)
	require.Len(t, items, 1)
	assert.Equal(t, "Paris", items[0].Name)
}

func TestGetCityShapes(t *testing.T) {
	c := newTestAPI(t)
	token := c.obtainToken("kevin")

	resp := c.get("/api/cities/1", url.Values{"includePointsOfInterest": {"true"}}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	full := decode[map[string]any](t, resp)
	assert.Equal(t, "New York City", full["name"])
	assert.Equal(t, float64(2), full["numberOfPointsOfInterest"])
	assert.Len(t, full["pointsOfInterest"], 2)

	resp = c.get("/api/cities/1", nil, token)
	reduced := decode[map[string]any](t, resp)
	assert.NotContains(t, reduced, "pointsOfInterest")

	resp = c.get("/api/cities/99", nil, token)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = c.get("/api/cities/abc", nil, token)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = c.get("/api/cities/1", url.Values{"includePointsOfInterest": {"maybe"}}, token)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestPointsOfInterestTenantPolicy(t *testing.T) {
	c := newTestAPI(t)

	resp := c.get("/api/cities/2/pointsofinterest", nil, tokenFor(t, "Rotterdam"))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = c.get("/api/cities/2/pointsofinterest", nil, tokenFor(t, "antwerp"))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	// the policy checks the caller's city claim, not the requested city
	resp = c.get("/api/cities/1/pointsofinterest", nil, c.obtainToken("kevin"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	pois := decode[[]cityinfo.PointOfInterestDto](t, resp)
	assert.Len(t, pois, 2)

	resp = c.get("/api/cities/2/pointsofinterest", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestPointOfInterestLookupOrder(t *testing.T) {
	c := newTestAPI(t)
	token := c.obtainToken("kevin")

	resp := c.do(http.MethodDelete, "/api/cities/99/pointsofinterest/1", nil, token)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "city not found", decode[errorBody](t, resp).Error)

	resp = c.do(http.MethodDelete, "/api/cities/2/pointsofinterest/1", nil, token)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "resource not found", decode[errorBody](t, resp).Error)

	resp = c.do(http.MethodPut, "/api/cities/99/pointsofinterest/1", json.RawMessage(`{"name":""}`), token)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = c.get("/api/cities/2/pointsofinterest/3", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Cathedral of Our Lady", decode[cityinfo.PointOfInterestDto](t, resp).Name)
}

func TestCreatePointOfInterest(t *testing.T) {
	c := newTestAPI(t)
	token := c.obtainToken("kevin")

	resp := c.do(http.MethodPost, "/api/cities/2/pointsofinterest", cityinfo.PointOfInterestForCreation{
		Name:        "Rubens House",
		Description: "Home and studio of Peter Paul Rubens.",
	}, token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[cityinfo.PointOfInterestDto](t, resp)
	assert.Equal(t, 7, created.ID)
	assert.Equal(t, "/api/cities/2/pointsofinterest/7", resp.Header.Get("Location"))

	resp = c.get(resp.Header.Get("Location"), nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, created, decode[cityinfo.PointOfInterestDto](t, resp))

	resp = c.do(http.MethodPost, "/api/cities/2/pointsofinterest", cityinfo.PointOfInterestForCreation{Name: " "}, token)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[errorBody](t, resp)
	require.Len(t, body.Errors, 1)
	var fe cityinfo.FieldError
	require.NoError(t, json.Unmarshal(body.Errors[0], &fe))
	assert.Equal(t, cityinfo.FieldError{Field: "name", Message: "You should provide a name value."}, fe)

	resp = c.do(http.MethodPost, "/api/cities/2/pointsofinterest", json.RawMessage(`{"name":`), token)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestUpdatePointOfInterest(t *testing.T) {
	c := newTestAPI(t)
	token := c.obtainToken("kevin")

	resp := c.do(http.MethodPut, "/api/cities/3/pointsofinterest/5", cityinfo.PointOfInterestForUpdate{
		Name:        "Tour Eiffel",
		Description: "Iron lady",
	}, token)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = c.get("/api/cities/3/pointsofinterest/5", nil, token)
	got := decode[cityinfo.PointOfInterestDto](t, resp)
	assert.Equal(t, "Tour Eiffel", got.Name)
	assert.Equal(t, "Iron lady", got.Description)
}

func TestPatchPointOfInterest(t *testing.T) {
	c := newTestAPI(t)
	token := c.obtainToken("kevin")
	path := "/api/cities/1/pointsofinterest/1"

	resp := c.do(http.MethodPatch, path, json.RawMessage(`[{"op":"replace","path":"/name","value":""}]`), token)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[errorBody](t, resp)
	assert.Equal(t, "validation failed", body.Error)
	require.Len(t, body.Errors, 1)

	resp = c.get(path, nil, token)
	assert.Equal(t, "Central Park", decode[cityinfo.PointOfInterestDto](t, resp).Name)

	resp = c.do(http.MethodPatch, path, json.RawMessage(`[{"op":"replace","path":"/name","value":"X"},{"op":"replace","path":"/id","value":4}]`), token)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body = decode[errorBody](t, resp)
	require.Len(t, body.Errors, 1)
	var opErr map[string]any
	require.NoError(t, json.Unmarshal(body.Errors[0], &opErr))
	assert.Equal(t, float64(1), opErr["index"])
	assert.Equal(t, "/id", opErr["path"])

	resp = c.do(http.MethodPatch, path, json.RawMessage(`{"op":"replace"}`), token)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = c.get(path, nil, token)
	assert.Equal(t, "Central Park", decode[cityinfo.PointOfInterestDto](t, resp).Name)

	resp = c.do(http.MethodPatch, path, json.RawMessage(`[{"op":"replace","path":"/name","value":"Updated - Central Park"}]`), token)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = c.get(path, nil, token)
	got := decode[cityinfo.PointOfInterestDto](t, resp)
	assert.Equal(t, "Updated - Central Park", got.Name)
	assert.Equal(t, "The most visited urban park in the United States.", got.Description)
}

func TestDeletePointOfInterestNotifiesOnce(t *testing.T) {
	c := newTestAPI(t)
	token := c.obtainToken("kevin")
	path := "/api/cities/3/pointsofinterest/6"

	resp := c.do(http.MethodDelete, path, nil, token)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = c.get(path, nil, token)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = c.do(http.MethodDelete, path, nil, token)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	msgs := c.notifier.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, notify.PointOfInterestDeleted("The Louvre", 6), msgs[0])
}

func TestCommitFailureIsInternalError(t *testing.T) {
	c := newTestAPI(t)
	token := c.obtainToken("kevin")
	c.store.FailCommits(errors.New("connection reset"))

	resp := c.do(http.MethodDelete, "/api/cities/1/pointsofinterest/2", nil, token)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "internal error", decode[errorBody](t, resp).Error)
	assert.Empty(t, c.notifier.messages())

	c.store.FailCommits(nil)
	resp = c.get("/api/cities/1/pointsofinterest/2", nil, token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

type failingProbe struct{}

func (failingProbe) Ping(context.Context) error { return errors.New("db down") }

func TestHealthAndReady(t *testing.T) {
	c := newTestAPI(t)

	resp := c.get("/healthz", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decode[map[string]any](t, resp)["status"])

	resp = c.get("/readyz", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	api := New(Deps{Ready: failingProbe{}})
	rr := httptest.NewRecorder()
	api.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	resp = c.get("/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}
