package api

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ig-automation/internal/automation"
	"ig-automation/internal/config"
	"ig-automation/internal/models"
	"ig-automation/internal/store"
	"ig-automation/internal/store/storetest"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type nopMessenger struct{}

func (nopMessenger) SendDirectMessage(context.Context, *models.InstagramAccount, string, string) (string, error) {
	return "mid", nil
}

func (nopMessenger) ReplyToComment(context.Context, *models.InstagramAccount, string, string) (string, error) {
	return "cid", nil
}

type env struct {
	router *gin.Engine
	store  *store.Store
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s := storetest.New(t)
	engine := automation.NewEngine(s, nopMessenger{}, automation.Options{})
	return &env{
		router: NewRouter(Deps{Config: &config.Config{JWTSecret: testSecret}, Engine: engine}),
		store:  s,
	}
}

func token(t *testing.T, owner string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: owner})
	signed, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (e *env) do(t *testing.T, method, path, owner, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if owner != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, owner))
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *env) simpleCampaign(t *testing.T, owner string) *models.Campaign {
	t.Helper()
	acct := storetest.Account(t, e.store, owner)
	return storetest.Campaign(t, e.store, owner, acct, func(c *models.Campaign) {
		c.Action = models.ActionSendDM
		c.MessageTemplate = "Hi {{username}}"
	})
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestRequiresOwnerToken(t *testing.T) {
	e := newEnv(t)

	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, "/triggers/process", "", "").Code)

	for _, header := range []string{"Bearer garbage", "Basic abc", "Bearer "} {
		req := httptest.NewRequest(http.MethodGet, "/triggers/process", nil)
		req.Header.Set("Authorization", header)
		w := httptest.NewRecorder()
		e.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, header)
	}

	other := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "owner-1"})
	signed, err := other.SignedString([]byte("another-secret"))
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/triggers/process", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestEmptySecretRejectsEveryToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/whoami", RequireOwner(""), func(c *gin.Context) {
		c.String(http.StatusOK, OwnerID(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, "owner-1"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	_, err := parseOwner(token(t, "owner-1"), "")
	assert.Error(t, err)
}

func TestProcessAllOwnedCampaigns(t *testing.T) {
	e := newEnv(t)
	mine := e.simpleCampaign(t, "owner-1")
	theirs := e.simpleCampaign(t, "owner-2")
	storetest.Trigger(t, e.store, mine.ID, "u-1", nil)
	storetest.Trigger(t, e.store, mine.ID, "u-2", nil)
	foreign := storetest.Trigger(t, e.store, theirs.ID, "u-3", nil)

	w := e.do(t, http.MethodGet, "/triggers/process", "owner-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var pending map[string]int64
	decode(t, w, &pending)
	assert.Equal(t, int64(2), pending["pendingCount"])

	// No body at all behaves like {}.
	w = e.do(t, http.MethodPost, "/triggers/process", "owner-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var sum automation.Summary
	decode(t, w, &sum)
	assert.Equal(t, automation.Summary{Processed: 2, Failed: 0}, sum)

	got, err := e.store.GetTrigger(context.Background(), foreign.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
}

func TestProcessSingleTriggerAndOwnership(t *testing.T) {
	e := newEnv(t)
	mine := e.simpleCampaign(t, "owner-1")
	tr := storetest.Trigger(t, e.store, mine.ID, "u-1", nil)

	w := e.do(t, http.MethodPost, "/triggers/process", "owner-2", `{"triggerId":"`+tr.ID+`"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = e.do(t, http.MethodPost, "/triggers/process", "owner-2", `{"campaignId":"`+mine.ID+`"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodPost, "/triggers/process", "owner-1", `{"triggerId":"`+tr.ID+`"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var res automation.Result
	decode(t, w, &res)
	assert.True(t, res.Success)
	assert.Equal(t, models.StatusCompleted, res.Status)

	w = e.do(t, http.MethodGet, "/triggers/"+tr.ID, "owner-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var detail struct {
		Trigger  models.Trigger   `json:"trigger"`
		Messages []models.Message `json:"messages"`
	}
	decode(t, w, &detail)
	require.Len(t, detail.Messages, 1)
	assert.Equal(t, "Hi alex", detail.Messages[0].Content)
}

func TestSubmitInputConflicts(t *testing.T) {
	e := newEnv(t)
	mine := e.simpleCampaign(t, "owner-1")
	tr := storetest.Trigger(t, e.store, mine.ID, "u-1", nil)

	w := e.do(t, http.MethodPost, "/triggers/"+tr.ID+"/input", "owner-1", `{"input":"me@example.com"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = e.do(t, http.MethodPost, "/triggers/"+tr.ID+"/input", "owner-1", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCampaignAnalytics(t *testing.T) {
	e := newEnv(t)
	mine := e.simpleCampaign(t, "owner-1")
	storetest.Trigger(t, e.store, mine.ID, "u-1", nil)
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/triggers/process", "owner-1", `{}`).Code)

	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/campaigns/"+mine.ID+"/analytics", "owner-2", "").Code)

	w := e.do(t, http.MethodGet, "/campaigns/"+mine.ID+"/analytics", "owner-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Days   []models.CampaignAnalytics `json:"days"`
		Totals map[string]int64           `json:"totals"`
	}
	decode(t, w, &body)
	require.Len(t, body.Days, 1)
	assert.Equal(t, int64(1), body.Totals["trigger_count"])
	assert.Equal(t, int64(1), body.Totals["dms_sent"])
	assert.Equal(t, int64(1), body.Totals["flow_completions"])
}

func TestLeadsExport(t *testing.T) {
	e := newEnv(t)
	mine := e.simpleCampaign(t, "owner-1")
	storetest.Trigger(t, e.store, mine.ID, "u-1", nil)
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/triggers/process", "owner-1", `{}`).Code)

	w := e.do(t, http.MethodGet, "/leads", "owner-2", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = e.do(t, http.MethodGet, "/leads/export", "owner-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))

	records, err := csv.NewReader(w.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Instagram ID", records[0][0])
	assert.Equal(t, []string{"u-1", "alex"}, records[1][:2])
	assert.Equal(t, "1", records[1][7])
}
