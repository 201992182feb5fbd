package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"server/config"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDispatcher(serverURL string) *TwilioDispatcher {
	dispatcher := NewTwilioDispatcher(config.Config{
		TwilioBaseURL:    serverURL,
		TwilioAccountSID: "AC_test",
		TwilioAuthToken:  "secret",
		TwilioFromNumber: "+10000000000",
	})
	dispatcher.client.RetryMax = 0
	return dispatcher
}

func TestTwilioDispatcher_Send(t *testing.T) {
	var gotPath, gotTo, gotFrom, gotBody string
	var gotUser, gotPass string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, gotPass, _ = r.BasicAuth()
		require.NoError(t, r.ParseForm())
		gotTo = r.PostForm.Get("To")
		gotFrom = r.PostForm.Get("From")
		gotBody = r.PostForm.Get("Body")

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid": "SM123", "status": "queued"}`))
	}))
	defer server.Close()

	sid, err := newDispatcher(server.URL).Send(context.Background(), "+911111111111", "hello donor")
	require.NoError(t, err)

	assert.Equal(t, "SM123", sid)
	assert.Equal(t, "/2010-04-01/Accounts/AC_test/Messages.json", gotPath)
	assert.Equal(t, "AC_test", gotUser)
	assert.Equal(t, "secret", gotPass)
	assert.Equal(t, "+911111111111", gotTo)
	assert.Equal(t, "+10000000000", gotFrom)
	assert.Equal(t, "hello donor", gotBody)
}

func TestTwilioDispatcher_Send_ProviderRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message": "The 'To' number is not a valid phone number."}`))
	}))
	defer server.Close()

	_, err := newDispatcher(server.URL).Send(context.Background(), "garbage", "hello")
	assert.Error(t, err)
}

func TestTwilioDispatcher_Send_ProviderUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	_, err := newDispatcher(server.URL).Send(context.Background(), "+911111111111", "hello")
	assert.Error(t, err)
}
