package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestWhatsAppVerify_EchoesChallenge(t *testing.T) {
	t.Parallel()

	h := NewWhatsAppHandler(nil, nil, "secret-token")
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet,
		"/webhooks/whatsapp/user-1?hub.mode=subscribe&hub.verify_token=secret-token&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/webhooks/whatsapp/:user_id")
	c.SetParamNames("user_id")
	c.SetParamValues("user-1")

	if err := h.Verify(c); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	if rec.Body.String() != "12345" {
		t.Fatalf("body=%q", rec.Body.String())
	}
}

func TestWhatsAppVerify_RejectsBadToken(t *testing.T) {
	t.Parallel()

	h := NewWhatsAppHandler(nil, nil, "secret-token")
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet,
		"/webhooks/whatsapp/user-1?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.Verify(c)
	if err == nil {
		t.Fatal("expected verification failure")
	}
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusForbidden {
		t.Fatalf("err=%v", err)
	}
}

func TestProjectKeyFromTicket(t *testing.T) {
	t.Parallel()

	cases := []struct {
		key  string
		want string
	}{
		{key: "SUP-123", want: "SUP"},
		{key: "OPS-1", want: "OPS"},
		{key: "NODASH", want: ""},
		{key: "", want: ""},
		{key: "A-B-7", want: "A-B"},
	}
	for _, tc := range cases {
		if got := projectKeyFromTicket(tc.key); got != tc.want {
			t.Fatalf("key=%q want=%q got=%q", tc.key, tc.want, got)
		}
	}
}
