package verify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode(5)
	require.NoError(t, err)
	assert.Len(t, code, 5)
	for _, c := range code {
		assert.True(t, c >= '0' && c <= '9')
	}
}

type slowSender struct{ delay time.Duration }

func (s slowSender) SendCode(ctx context.Context, _, _ string) error {
	select {
	case <-time.After(s.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestWithTimeoutPassesThroughFastSends(t *testing.T) {
	sender := WithTimeout(slowSender{delay: time.Millisecond})
	assert.NoError(t, sender.SendCode(context.Background(), "+989121234567", "12345"))
}

func TestWithTimeoutHonoursCallerDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	sender := WithTimeout(slowSender{delay: time.Minute})
	err := sender.SendCode(ctx, "+989121234567", "12345")
	assert.Error(t, err)
}

func TestSMSClientSendsRequest(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/v1/messages", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewSMSClient(srv.URL, "key-1", srv.Client(), nil)
	require.NoError(t, client.SendCode(context.Background(), "+989121234567", "12345"))
	assert.Equal(t, "Bearer key-1", gotAuth)
}

func TestSMSClientRejectsGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewSMSClient(srv.URL, "key-1", srv.Client(), nil)
	assert.Error(t, client.SendCode(context.Background(), "+989121234567", "12345"))
}

func TestEmailClientFormatsMessage(t *testing.T) {
	var sentTo []string
	var sentMsg string

	client := NewEmailClient("mail:25", "bot@example.com", "", "", "mail", nil)
	client.send = func(_ string, _ smtp.Auth, _ string, to []string, msg []byte) error {
		sentTo = to
		sentMsg = string(msg)
		return nil
	}

	require.NoError(t, client.SendCode(context.Background(), "user@example.com", "48213"))
	assert.Equal(t, []string{"user@example.com"}, sentTo)
	assert.Contains(t, sentMsg, "48213")
	assert.Contains(t, sentMsg, "To: user@example.com")
}
