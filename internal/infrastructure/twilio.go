package infrastructure

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

const twilioAPIBase = "https://api.twilio.com/2010-04-01"

// TwilioClient sends outbound messages through Twilio Programmable Messaging.
// Recipients carrying a "whatsapp:" prefix are replied to over the WhatsApp
// channel; everything else goes out as SMS.
type TwilioClient struct {
	accountSID string
	authToken  string
	fromNumber string
	baseURL    string
	httpClient *http.Client
}

func NewTwilioClient(accountSID, authToken, fromNumber string) *TwilioClient {
	return &TwilioClient{
		accountSID: accountSID,
		authToken:  authToken,
		fromNumber: fromNumber,
		baseURL:    twilioAPIBase,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// SetBaseURL points the client at a different API host (tests).
func (t *TwilioClient) SetBaseURL(base string) {
	t.baseURL = strings.TrimRight(base, "/")
}

func (t *TwilioClient) SendMessage(ctx context.Context, to, body string) error {
	from := t.fromNumber
	if strings.HasPrefix(to, "whatsapp:") {
		from = "whatsapp:" + from
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", from)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", t.baseURL, t.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build twilio request: %w", err)
	}
	req.SetBasicAuth(t.accountSID, t.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send twilio message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("twilio returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}

// RequestValidator checks the X-Twilio-Signature header Twilio attaches to
// webhook deliveries: base64(HMAC-SHA1(auth token, full URL + form params
// concatenated in sorted key order)).
type RequestValidator struct {
	authToken []byte
}

func NewRequestValidator(authToken string) *RequestValidator {
	return &RequestValidator{authToken: []byte(authToken)}
}

func (v *RequestValidator) Validate(fullURL string, params url.Values, signature string) bool {
	if signature == "" {
		return false
	}

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

	mac := hmac.New(sha1.New, v.authToken)
	mac.Write([]byte(sb.String()))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
