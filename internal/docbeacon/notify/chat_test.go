package notify_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/BrandonDHaskell/docbeacon/internal/docbeacon/notify"
)

func TestChatChannel_PostsForm(t *testing.T) {
	var gotPath, gotToken, gotTo, gotBody, gotCT string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotCT = r.Header.Get("Content-Type")
		_ = r.ParseForm()
		gotToken, gotTo, gotBody = r.PostForm.Get("token"), r.PostForm.Get("to"), r.PostForm.Get("body")
		_, _ = w.Write([]byte(`{"sent":"true","message":"ok","id":1}`))
	}))
	defer srv.Close()

	ch := notify.NewChatChannel(notify.ChatConfig{
		BaseURL: srv.URL, InstanceID: "instance42", Token: "tok", ToNumber: "15551234567",
	}, srv.Client())

	if err := ch.Send(context.Background(), notify.Message{Body: "hello"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotPath != "/instance42/messages/chat" {
		t.Errorf("path = %s", gotPath)
	}
	if gotCT != "application/x-www-form-urlencoded" {
		t.Errorf("content type = %s", gotCT)
	}
	if gotToken != "tok" || gotTo != "+15551234567" || gotBody != "hello" {
		t.Errorf("form = token:%q to:%q body:%q", gotToken, gotTo, gotBody)
	}
}

func TestChatChannel_Failures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"http status", http.StatusBadGateway, `oops`, "http_error: 502"},
		{"not sent", http.StatusOK, `{"error":"wrong token"}`, "api_error"},
		{"sent false", http.StatusOK, `{"sent":"false"}`, "api_error"},
		{"garbage", http.StatusOK, `<html>`, "api_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			ch := notify.NewChatChannel(notify.ChatConfig{
				BaseURL: srv.URL, InstanceID: "i", Token: "t", ToNumber: "+1",
			}, srv.Client())

			err := ch.Send(context.Background(), notify.Message{Body: "x"})
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err = %v, want containing %q", err, tc.want)
			}
		})
	}
}

func TestChatChannel_Configured(t *testing.T) {
	if notify.NewChatChannel(notify.ChatConfig{InstanceID: "i", Token: "t"}, nil).Configured() {
		t.Error("missing number must be unconfigured")
	}
	if !notify.NewChatChannel(notify.ChatConfig{InstanceID: "i", Token: "t", ToNumber: "1"}, nil).Configured() {
		t.Error("expected configured")
	}
}
