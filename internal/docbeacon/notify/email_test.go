package notify_test

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BrandonDHaskell/docbeacon/internal/docbeacon/notify"
)

// fakeSMTP is a minimal plaintext SMTP server that advertises AUTH PLAIN
// and records the DATA payload.
type fakeSMTP struct {
	ln net.Listener

	mu   sync.Mutex
	cmds []string
	data string
}

func startFakeSMTP(t *testing.T) *fakeSMTP {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &fakeSMTP{ln: ln}
	go s.serve()
	t.Cleanup(func() { ln.Close() })
	return s
}

func (s *fakeSMTP) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *fakeSMTP) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *fakeSMTP) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)
	reply := func(line string) {
		_, _ = w.WriteString(line + "\r\n")
		_ = w.Flush()
	}

	reply("220 fake ESMTP")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		verb := strings.ToUpper(strings.SplitN(line, " ", 2)[0])

		s.mu.Lock()
		s.cmds = append(s.cmds, verb)
		s.mu.Unlock()

		switch verb {
		case "EHLO", "HELO":
			reply("250-fake")
			reply("250 AUTH PLAIN")
		case "AUTH":
			reply("235 2.7.0 Authentication successful")
		case "MAIL", "RCPT":
			reply("250 OK")
		case "DATA":
			reply("354 go ahead")
			var b strings.Builder
			for {
				dl, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if dl == ".\r\n" {
					break
				}
				b.WriteString(dl)
			}
			s.mu.Lock()
			s.data = b.String()
			s.mu.Unlock()
			reply("250 queued")
		case "QUIT":
			reply("221 bye")
			return
		default:
			reply("250 OK")
		}
	}
}

func (s *fakeSMTP) snapshot() ([]string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.cmds...), s.data
}

func TestEmailChannel_SendsThroughSMTP(t *testing.T) {
	srv := startFakeSMTP(t)

	ch := notify.NewEmailChannel(notify.EmailConfig{
		Host: "127.0.0.1", Port: srv.port(),
		From: "sender@example.com", Password: "pw", To: "owner@example.com",
	})
	if !ch.Configured() {
		t.Fatal("expected configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := ch.Send(ctx, notify.Message{Subject: "Document opened: DOC1 - Alice", Body: "line one\nline two"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	cmds, data := srv.snapshot()
	joined := strings.Join(cmds, ",")
	for _, want := range []string{"EHLO", "AUTH", "MAIL", "RCPT", "DATA"} {
		if !strings.Contains(joined, want) {
			t.Errorf("missing %s in %s", want, joined)
		}
	}
	for _, want := range []string{"To: owner@example.com", "Subject: Document opened: DOC1 - Alice", "line one\r\nline two"} {
		if !strings.Contains(data, want) {
			t.Errorf("message missing %q:\n%s", want, data)
		}
	}
}

func TestEmailChannel_ConnectionRefused(t *testing.T) {
	// Grab a free port and close it so nothing is listening.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	ch := notify.NewEmailChannel(notify.EmailConfig{
		Host: "127.0.0.1", Port: port,
		From: "a@example.com", Password: "pw", To: "b@example.com",
	})

	err = ch.Send(context.Background(), notify.Message{Subject: "s", Body: "b"})
	if err == nil || !strings.Contains(err.Error(), "connect 127.0.0.1:"+strconv.Itoa(port)) {
		t.Fatalf("expected connect error, got %v", err)
	}
}

func TestEmailChannel_Configured(t *testing.T) {
	cases := []struct {
		name string
		cfg  notify.EmailConfig
		want bool
	}{
		{"complete", notify.EmailConfig{Host: "smtp.example.com", From: "a@x", Password: "p", To: "b@x"}, true},
		{"no password", notify.EmailConfig{Host: "smtp.example.com", From: "a@x", To: "b@x"}, false},
		{"no host", notify.EmailConfig{From: "a@x", Password: "p", To: "b@x"}, false},
		{"no recipient", notify.EmailConfig{Host: "smtp.example.com", From: "a@x", Password: "p"}, false},
	}
	for _, tc := range cases {
		if got := notify.NewEmailChannel(tc.cfg).Configured(); got != tc.want {
			t.Errorf("%s: Configured() = %v, want %v", tc.name, got, tc.want)
		}
	}
}
