//go:build integration

package imap

import (
	"fmt"
	"net"
	"net/smtp"
	"os"
	"sync"
	"testing"
	"time"
)

// Integration tests require a running IMAP server.
// Start one with: docker compose up -d
//
// Run tests with: go test -tags=integration -v ./...
//
// Note: These tests modify the global TLSSkipVerify variable and use a mutex
// to prevent race conditions. Do not run with t.Parallel() at the top level.

const (
	testIMAPHost = "localhost"
	testIMAPPort = 3143
	testSMTPHost = "localhost"
	testSMTPPort = 3025
	testUser     = "testuser@localhost"
	testPass     = "testpass"
)

// tlsSkipVerifyMu protects access to the global TLSSkipVerify variable
// to prevent race conditions when tests run concurrently.
var tlsSkipVerifyMu sync.Mutex

func getTestConfig() (host string, imapPort, smtpPort int) {
	host = testIMAPHost
	imapPort = testIMAPPort
	smtpPort = testSMTPPort

	if h := os.Getenv("IMAP_TEST_HOST"); h != "" {
		host = h
	}
	return host, imapPort, smtpPort
}

func waitForServer(host string, port int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", host, port), time.Second)
		if err == nil {
			conn.Close()
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("server %s:%d not ready after %v", host, port, timeout)
}

func sendTestEmail(host string, port int, from, to, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", from, to, subject, body)
	return smtp.SendMail(addr, nil, from, []string{to}, []byte(msg))
}

func setupTestConnection(t *testing.T) *Client {
	t.Helper()

	host, imapPort, smtpPort := getTestConfig()

	// Wait for servers to be ready
	if err := waitForServer(host, imapPort, 30*time.Second); err != nil {
		t.Skipf("IMAP server not available: %v (run: docker compose up -d)", err)
	}
	if err := waitForServer(host, smtpPort, 30*time.Second); err != nil {
		t.Skipf("SMTP server not available: %v (run: docker compose up -d)", err)
	}

	tlsSkipVerifyMu.Lock()
	oldSkipVerify := TLSSkipVerify
	TLSSkipVerify = true
	t.Cleanup(func() {
		TLSSkipVerify = oldSkipVerify
		tlsSkipVerifyMu.Unlock()
	})

	// GreenMail creates users on first login attempt; 3993 is its IMAPS port
	conn, err := New(testUser, testPass, host, 3993)
	if err != nil {
		t.Skipf("Could not connect to IMAP server: %v", err)
	}

	t.Cleanup(func() {
		if conn != nil {
			conn.Close()
		}
	})

	return conn
}

func deliver(t *testing.T, n int, prefix string) {
	t.Helper()
	host, _, smtpPort := getTestConfig()
	for i := 1; i <= n; i++ {
		subject := fmt.Sprintf("%s %d", prefix, i)
		if err := sendTestEmail(host, smtpPort, "sender@localhost", testUser, subject, "body"); err != nil {
			t.Fatalf("Failed to send test email %d: %v", i, err)
		}
		time.Sleep(50 * time.Millisecond)
	}
	// Give server time to process
	time.Sleep(500 * time.Millisecond)
}

func TestIntegration_ListMailboxes(t *testing.T) {
	conn := setupTestConnection(t)

	mailboxes, err := conn.ListMailboxes("", "*")
	if err != nil {
		t.Fatalf("ListMailboxes failed: %v", err)
	}

	var inbox *Mailbox
	for i := range mailboxes {
		if mailboxes[i].Name == "INBOX" {
			inbox = &mailboxes[i]
		}
	}
	if inbox == nil {
		t.Fatalf("INBOX missing from %v", mailboxes)
	}
	if len(inbox.Segments) < 2 {
		t.Errorf("expected delimiter and name segments, got %q", inbox.Segments)
	}

	raw, err := conn.RawMailboxes("", "INBOX")
	if err != nil {
		t.Fatalf("RawMailboxes failed: %v", err)
	}
	if len(raw) != 1 {
		t.Errorf("expected one raw line for INBOX, got %q", raw)
	}
}

func TestIntegration_Search(t *testing.T) {
	conn := setupTestConnection(t)
	deliver(t, 5, "Search Test")

	count, err := conn.Select("INBOX", true)
	if err != nil {
		t.Fatalf("Failed to examine INBOX: %v", err)
	}

	t.Run("SearchIDs ALL matches EXISTS", func(t *testing.T) {
		ids, err := conn.SearchIDs()
		if err != nil {
			t.Fatalf("SearchIDs failed: %v", err)
		}
		if len(ids) != count {
			t.Errorf("Expected %d ids, got %d", count, len(ids))
		}
	})

	t.Run("GetUIDs ascending", func(t *testing.T) {
		uids, err := conn.GetUIDs("ALL")
		if err != nil {
			t.Fatalf("GetUIDs(ALL) failed: %v", err)
		}
		if len(uids) != count {
			t.Errorf("Expected %d UIDs, got %d", count, len(uids))
		}
		for i := 1; i < len(uids); i++ {
			if uids[i] <= uids[i-1] {
				t.Errorf("UIDs not in ascending order: %v", uids)
				break
			}
		}
	})

	t.Run("SearchIDs with no match", func(t *testing.T) {
		ids, err := conn.SearchIDs("SUBJECT", `"no such subject anywhere"`)
		if err != nil {
			t.Fatalf("SearchIDs failed: %v", err)
		}
		if len(ids) != 0 {
			t.Errorf("Expected no ids, got %v", ids)
		}
	})
}

func TestIntegration_FolderStats(t *testing.T) {
	conn := setupTestConnection(t)
	deliver(t, 2, "Stats Test")

	stats, err := conn.GetFolderStats()
	if err != nil {
		t.Fatalf("GetFolderStats failed: %v", err)
	}
	for _, s := range stats {
		if s.Name == "INBOX" {
			if s.Error != nil || s.Count == 0 || s.MaxUID == 0 {
				t.Errorf("unexpected INBOX stats: %s", s)
			}
			return
		}
	}
	t.Errorf("INBOX missing from stats %v", stats)
}

func TestIntegration_Connection(t *testing.T) {
	host, imapPort, _ := getTestConfig()

	if err := waitForServer(host, imapPort, 10*time.Second); err != nil {
		t.Skipf("IMAP server not available: %v", err)
	}

	tlsSkipVerifyMu.Lock()
	oldSkipVerify := TLSSkipVerify
	TLSSkipVerify = true
	defer func() {
		TLSSkipVerify = oldSkipVerify
		tlsSkipVerifyMu.Unlock()
	}()

	t.Run("Connect and authenticate", func(t *testing.T) {
		conn, err := New(testUser, testPass, host, 3993)
		if err != nil {
			t.Fatalf("Failed to connect: %v", err)
		}
		defer conn.Close()

		folders, err := conn.GetFolders()
		if err != nil {
			t.Fatalf("Failed to get folders: %v", err)
		}

		if len(folders) == 0 {
			t.Error("Expected at least one folder")
		}
	})
}
