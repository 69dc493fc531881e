package instagram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ig-automation/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var acct = &models.InstagramAccount{ExternalID: "17841400000", AccessToken: "tok"}

func TestSendDirectMessage(t *testing.T) {
	var got sendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/17841400000/messages", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"recipient_id":"u1","message_id":"mid.1"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0)
	id, err := c.SendDirectMessage(context.Background(), acct, "u1", strings.Repeat("é", 1200))
	require.NoError(t, err)
	assert.Equal(t, "mid.1", id)
	assert.Equal(t, "u1", got.Recipient.ID)
	assert.Equal(t, MaxTextLength, len([]rune(got.Message.Text)))
}

func TestReplyToComment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/c42/replies", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "thanks!", r.PostForm.Get("message"))
		assert.Equal(t, "tok", r.PostForm.Get("access_token"))
		w.Write([]byte(`{"id":"reply.9"}`))
	}))
	defer srv.Close()

	id, err := NewClient(srv.URL, 10).ReplyToComment(context.Background(), acct, "c42", "thanks!")
	require.NoError(t, err)
	assert.Equal(t, "reply.9", id)
}

func TestProviderErrorSurfacedVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"(#10) This message is sent outside of allowed window.","code":10}}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, 0).SendDirectMessage(context.Background(), acct, "u1", "hi")
	require.Error(t, err)
	assert.Equal(t, "(#10) This message is sent outside of allowed window.", err.Error())

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestProviderErrorWithoutEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, 0).ReplyToComment(context.Background(), acct, "c1", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream down")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short"))
	assert.Len(t, []rune(Truncate(strings.Repeat("a", 1001))), MaxTextLength)
}
