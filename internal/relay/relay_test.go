package relay

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/insurance-leads-platform/internal/leads"
	"github.com/wolfman30/insurance-leads-platform/pkg/logging"
)

func testRecord() leads.LeadRecord {
	return leads.LeadRecord{
		Name:     "Ana Silva",
		Email:    "ana@example.com",
		Phone:    "(11) 98888-7777",
		Operator: "amil",
		Message:  leads.DefaultMessage,
		Status:   leads.StatusNew,
		Priority: leads.DefaultPriority,
		Metadata: &leads.Metadata{UTMSource: "google"},
	}
}

func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	client, err := New(Config{
		Endpoint:         server.URL + "/ajax",
		DestinationEmail: "contato@corretora.com.br",
		HTTPClient:       server.Client(),
		Logger:           logging.New("error"),
	})
	require.NoError(t, err)
	return client
}

func TestSendPostsFormWithControlFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/ajax/contato@corretora.com.br", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "ana@example.com", r.PostForm.Get("email"))
		assert.Equal(t, "amil", r.PostForm.Get("operator"))
		assert.Equal(t, "new", r.PostForm.Get("status"))
		assert.Equal(t, "3", r.PostForm.Get("priority"))
		assert.Equal(t, "google", r.PostForm.Get("utm_source"))
		assert.Equal(t, "false", r.PostForm.Get("_captcha"))
		assert.Equal(t, "table", r.PostForm.Get("_template"))
		assert.Equal(t, "Novo lead pelo site - amil", r.PostForm.Get("_subject"))
		assert.Equal(t, "ana@example.com", r.PostForm.Get("_replyto"))
		_, hasSubject := r.PostForm["subject"]
		assert.False(t, hasSubject, "empty fields must be stripped")

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":"true","message":"The form was submitted successfully."}`))
	}))
	defer server.Close()

	ack, err := newTestClient(t, server).Send(context.Background(), testRecord())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, ack.StatusCode)
	assert.Equal(t, "The form was submitted successfully.", ack.Message)
}

func TestSendJSONFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Write([]byte(`{"success":"false","message":"This form needs Activation."}`))
	}))
	defer server.Close()

	_, err := newTestClient(t, server).Send(context.Background(), testRecord())
	var relayErr *RelayError
	require.True(t, errors.As(err, &relayErr))
	assert.Equal(t, "relay: This form needs Activation. (status=200)", err.Error())
}

func TestSendHTMLErrorPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`<html><head><title>Error</title></head><body>
			<div class="alert">  Make sure you   provide a valid email.</div></body></html>`))
	}))
	defer server.Close()

	_, err := newTestClient(t, server).Send(context.Background(), testRecord())
	var relayErr *RelayError
	require.True(t, errors.As(err, &relayErr))
	assert.Equal(t, http.StatusUnprocessableEntity, relayErr.StatusCode)
	assert.Equal(t, "Make sure you provide a valid email.", relayErr.Detail)
}

func TestSendHTMLAcceptedPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><h1>Thanks!</h1></body></html>`))
	}))
	defer server.Close()

	ack, err := newTestClient(t, server).Send(context.Background(), testRecord())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, ack.StatusCode)
}

func TestSendEmptyErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := newTestClient(t, server).Send(context.Background(), testRecord())
	require.Error(t, err)
	assert.Equal(t, "relay: HTTP 503", err.Error())
}

func TestSendUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client := newTestClient(t, server)
	server.Close()

	_, err := client.Send(context.Background(), testRecord())
	require.Error(t, err)
	var relayErr *RelayError
	assert.False(t, errors.As(err, &relayErr))
}

func TestNewRequiresDestination(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	client, err := New(Config{DestinationEmail: "x@y.z"})
	require.NoError(t, err)
	assert.Equal(t, defaultEndpoint, client.endpoint)
	assert.Equal(t, defaultSubject, client.subject)
}
