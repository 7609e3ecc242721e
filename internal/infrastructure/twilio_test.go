package infrastructure

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func signTwilio(authToken, fullURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteString(fullURL)
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteString(params.Get(k))
	}
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(sb.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestRequestValidator(t *testing.T) {
	v := NewRequestValidator("secret-token")
	fullURL := "https://example.com/webhook/message"
	params := url.Values{}
	params.Set("From", "+15550001111")
	params.Set("Body", "hello")
	params.Set("MessageSid", "SM123")

	sig := signTwilio("secret-token", fullURL, params)
	require.True(t, v.Validate(fullURL, params, sig))

	// Tampered params, wrong token, or missing signature all fail.
	tampered := url.Values{}
	for k := range params {
		tampered.Set(k, params.Get(k))
	}
	tampered.Set("Body", "changed")
	require.False(t, v.Validate(fullURL, tampered, sig))

	wrongToken := NewRequestValidator("other-token")
	require.False(t, wrongToken.Validate(fullURL, params, sig))

	require.False(t, v.Validate(fullURL, params, ""))
	require.False(t, v.Validate("https://example.com/other", params, sig))
}

func TestSendMessage(t *testing.T) {
	var gotPath string
	var gotForm url.Values
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		user, _, _ := r.BasicAuth()
		gotAuth = user
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	client := NewTwilioClient("AC123", "token", "+15550000000")
	client.SetBaseURL(srv.URL)

	err := client.SendMessage(context.Background(), "+15551112222", "test body")
	require.NoError(t, err)
	require.Equal(t, "/Accounts/AC123/Messages.json", gotPath)
	require.Equal(t, "AC123", gotAuth)
	require.Equal(t, "+15551112222", gotForm.Get("To"))
	require.Equal(t, "+15550000000", gotForm.Get("From"))
	require.Equal(t, "test body", gotForm.Get("Body"))
}

func TestSendMessageWhatsAppPrefix(t *testing.T) {
	var gotForm url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	client := NewTwilioClient("AC123", "token", "+15550000000")
	client.SetBaseURL(srv.URL)

	err := client.SendMessage(context.Background(), "whatsapp:+15551112222", "hi")
	require.NoError(t, err)
	// WhatsApp recipients require the WhatsApp-prefixed sender.
	require.Equal(t, "whatsapp:+15550000000", gotForm.Get("From"))
	require.Equal(t, "whatsapp:+15551112222", gotForm.Get("To"))
}

func TestSendMessageAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code": 21211, "message": "Invalid 'To' phone number"}`))
	}))
	defer srv.Close()

	client := NewTwilioClient("AC123", "token", "+15550000000")
	client.SetBaseURL(srv.URL)

	err := client.SendMessage(context.Background(), "bogus", "hi")
	require.Error(t, err)
	require.Contains(t, err.Error(), "400")
	require.Contains(t, err.Error(), "21211")
}
