package imap

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/sqs/go-xoauth2"
)

// syncBuffer guards a bytes.Buffer shared with the logging handler
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func captureLogs(t *testing.T, level slog.Level) *syncBuffer {
	t.Helper()
	buf := &syncBuffer{}
	SetSlogLogger(slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: level})))
	t.Cleanup(func() { SetLogger(nil) })
	return buf
}

func TestLoggerAttrs(t *testing.T) {
	buf := captureLogs(t, slog.LevelDebug)

	originalVerbose := Verbose
	defer func() { Verbose = originalVerbose }()

	Verbose = false
	debugLog(3, "INBOX", "hidden")
	if buf.String() != "" {
		t.Fatalf("debug output without Verbose: %q", buf.String())
	}

	Verbose = true
	debugLog(3, "INBOX", "shown", "key", "value")
	warnLog(-1, "", "package level")

	out := buf.String()
	for _, want := range []string{"msg=shown", "component=imap/client", "conn=3", "mailbox=INBOX", "key=value", "msg=\"package level\""} {
		if !strings.Contains(out, want) {
			t.Errorf("log output misses %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "conn=-1") {
		t.Errorf("package level entry carries a connection number:\n%s", out)
	}
}

func TestListMailboxesLogsUninterpretableLine(t *testing.T) {
	server, c := newTestClient(t)
	server.configure(func(s *mockIMAPServer) {
		s.listing = []string{"* LIST \\NoInferiors \"/\" \"Junk\"\r\n"}
	})
	buf := captureLogs(t, slog.LevelWarn)

	if _, err := c.ListMailboxes("", "*"); err == nil {
		t.Fatal("expected an error")
	}
	out := buf.String()
	for _, want := range []string{"level=WARN", "cannot interpret LIST response", "command=LIST", "offset=0", "line="} {
		if !strings.Contains(out, want) {
			t.Errorf("warning misses %q:\n%s", want, out)
		}
	}
}

func TestVerboseHidesPassword(t *testing.T) {
	buf := captureLogs(t, slog.LevelDebug)
	_, c := newTestClient(t)

	Verbose = true // restored by newTestClient's cleanup
	if err := c.Login("testuser", "testpass"); err != nil {
		t.Fatalf("Login error: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "testpass") {
		t.Errorf("password leaked into verbose log:\n%s", out)
	}
	if !strings.Contains(out, "****") {
		t.Errorf("expected a masked password in:\n%s", out)
	}
}

func TestVerboseHidesCredentialsOnFirstConnect(t *testing.T) {
	withTestSettings(t, 1)
	server, err := newMockIMAPServer("testuser", "testpass")
	if err != nil {
		t.Fatalf("Failed to create mock server: %v", err)
	}
	t.Cleanup(server.Close)

	t.Run("login", func(t *testing.T) {
		buf := captureLogs(t, slog.LevelDebug)
		Verbose = true
		c, err := New("testuser", "testpass", server.GetHost(), server.GetPort())
		if err != nil {
			t.Fatalf("New error: %v", err)
		}
		defer c.Close()

		out := buf.String()
		if !strings.Contains(out, "LOGIN") {
			t.Fatalf("LOGIN was not logged:\n%s", out)
		}
		if strings.Contains(out, "testpass") {
			t.Errorf("password leaked into verbose log:\n%s", out)
		}
	})

	t.Run("failed login", func(t *testing.T) {
		buf := captureLogs(t, slog.LevelDebug)
		Verbose = true
		if _, err := New("testuser", "wrongpass", server.GetHost(), server.GetPort()); err == nil {
			t.Fatal("expected an authentication error")
		}
		if out := buf.String(); strings.Contains(out, "wrongpass") {
			t.Errorf("rejected password leaked into verbose log:\n%s", out)
		}
	})

	t.Run("xoauth2", func(t *testing.T) {
		buf := captureLogs(t, slog.LevelDebug)
		Verbose = true
		c, err := NewWithOAuth2("testuser", "ya29.token", server.GetHost(), server.GetPort())
		if err != nil {
			t.Fatalf("NewWithOAuth2 error: %v", err)
		}
		defer c.Close()

		out := buf.String()
		if !strings.Contains(out, "AUTHENTICATE XOAUTH2 ****") {
			t.Errorf("XOAUTH2 payload not masked:\n%s", out)
		}
		if strings.Contains(out, xoauth2.XOAuth2String("testuser", "ya29.token")) {
			t.Errorf("XOAUTH2 payload leaked into verbose log:\n%s", out)
		}
	})
}

func TestRedactCommand(t *testing.T) {
	tests := []struct {
		command string
		secrets []string
		want    string
	}{
		{`A1 LOGIN "u" "p\"w"`, []string{`"p\"w"`}, `A1 LOGIN "u" ****`},
		{`A1 SELECT "INBOX"`, []string{""}, `A1 SELECT "INBOX"`},
		{`A1 AUTHENTICATE XOAUTH2 dXNlcj0=`, []string{"dXNlcj0="}, `A1 AUTHENTICATE XOAUTH2 ****`},
	}
	for _, tt := range tests {
		if got := redactCommand(tt.command, tt.secrets...); got != tt.want {
			t.Errorf("redactCommand(%q) = %q, want %q", tt.command, got, tt.want)
		}
	}
}
