package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/segment-rules/internal/cache"
	"github.com/ignite/segment-rules/internal/config"
	"github.com/ignite/segment-rules/internal/domain"
	"github.com/ignite/segment-rules/internal/pkg/apiauth"
	"github.com/ignite/segment-rules/internal/repository/httpapi"
	"github.com/ignite/segment-rules/internal/repository/memory"
	"github.com/ignite/segment-rules/internal/service/segment"
)

func newStub(t *testing.T, cfg config.ServerConfig) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer(cfg, Deps{Store: memory.NewSegmentStore()}).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestRefreshRotatesAccessToken(t *testing.T) {
	srv := newStub(t, config.ServerConfig{AccessToken: "initial", RefreshToken: "r1"})

	resp, err := http.Post(srv.URL+apiauth.RefreshPath, "application/json", strings.NewReader(`{"refresh_token":"wrong"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Post(srv.URL+apiauth.RefreshPath, "application/json", strings.NewReader(`{"refresh_token":"r1"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Data struct {
			Tokens apiauth.TokenPair `json:"tokens"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotEmpty(t, body.Data.Tokens.AccessToken)
	assert.NotEqual(t, "initial", body.Data.Tokens.AccessToken)
	assert.Equal(t, "r1", body.Data.Tokens.RefreshToken)
}

func TestAuthRequiredWhenConfigured(t *testing.T) {
	srv := newStub(t, config.ServerConfig{AccessToken: "secret"})

	req, _ := http.NewRequest(http.MethodGet, srv.URL+httpapi.SegmentsPath, nil)
	req.Header.Set(TenantHeader, "1")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// TestClientAgainstStub drives the segment service through the REST client
// against the stub, starting from an expired access token.
func TestClientAgainstStub(t *testing.T) {
	srv := newStub(t, config.ServerConfig{AccessToken: "current", RefreshToken: "refresh"})
	ctx := context.Background()

	tokens := apiauth.NewTokenSource(srv.URL, "expired", "refresh")
	client := httpapi.New(httpapi.Config{BaseURL: srv.URL, TenantID: 5, Tokens: tokens, Timeout: 5 * time.Second})
	svc := segment.NewService(client, 5, segment.WithCache(cache.NewMemory(time.Minute)))

	created, err := svc.Create(ctx, segment.Draft{
		Name: " Gmail users ",
		Rules: domain.RuleGroup{Operator: domain.CombinatorOr, Rules: []domain.Rule{
			{Field: domain.FieldEmail, Operator: domain.OpContains, Value: "gmail.com"},
			{Field: domain.FieldCountry, Operator: domain.OpEquals, Value: ""},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Gmail users", created.Name)
	assert.Equal(t, domain.SegmentDynamic, created.Type)
	require.NotNil(t, created.Rules)
	assert.Equal(t, domain.CombinatorAnd, created.Rules.Operator)
	assert.Len(t, created.Rules.Rules, 1)

	_, err = svc.Create(ctx, segment.Draft{
		Name:  "VIP",
		Type:  domain.SegmentStatic,
		Rules: domain.RuleGroup{Rules: []domain.Rule{{Field: domain.FieldTag, Operator: domain.OpHasTag, Value: "vip"}}},
	})
	require.NoError(t, err)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "VIP", list[0].Name)

	// Duplicate names come back as a field-level validation error.
	_, err = svc.Create(ctx, segment.Draft{
		Name:  "vip",
		Rules: domain.RuleGroup{Rules: []domain.Rule{{Field: domain.FieldTag, Operator: domain.OpHasTag, Value: "x"}}},
	})
	var ve *segment.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, http.StatusConflict, ve.StatusCode)
	assert.Contains(t, ve.Fields, "name")

	updated, err := svc.Update(ctx, created.ID, segment.Draft{
		Name: "Gmail students",
		Rules: domain.RuleGroup{Rules: []domain.Rule{
			{Field: domain.FieldEmail, Operator: domain.OpEndsWith, Value: ".edu"},
			{Field: domain.FieldCreatedAfter, Operator: domain.OpEquals, Value: "2024-01-01"},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Gmail students", updated.Name)
	assert.Len(t, updated.Rules.Rules, 2)

	preview, err := svc.Preview(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, preview.Total)
	assert.Empty(t, preview.Contacts)

	require.NoError(t, svc.Delete(ctx, created.ID))
	// Deleting twice is not an error for the caller.
	require.NoError(t, svc.Delete(ctx, created.ID))

	_, err = svc.Get(ctx, created.ID)
	assert.ErrorIs(t, err, segment.ErrNotFound)

	list, err = svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
