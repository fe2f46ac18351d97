package imap

import (
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"sync"

	retry "github.com/StirlingMarketingGroup/go-retry"
)

var (
	nextConnNum      = 0
	nextConnNumMutex = sync.Mutex{}
)

// Client represents an IMAP connection
type Client struct {
	conn      *tls.Conn
	Folder    string
	ReadOnly  bool
	Username  string
	Password  string
	Host      string
	Port      int
	Delimiter string
	Connected bool
	ConnNum   int

	authenticated bool
	// authSecret is the credential as it appears on the wire, masked in
	// verbose logs. It is set before the command is sent.
	authSecret string
	// useXOAUTH2 indicates whether XOAUTH2 authentication should be used
	// on (re)connection instead of LOGIN. It is set by NewWithOAuth2.
	useXOAUTH2 bool
}

// dialHost establishes a TLS connection to the IMAP server
func dialHost(host string, port int) (*tls.Conn, error) {
	dialer := &net.Dialer{Timeout: DialTimeout}
	var cfg *tls.Config
	if TLSSkipVerify {
		cfg = &tls.Config{InsecureSkipVerify: true}
	}
	return tls.DialWithDialer(dialer, "tcp", net.JoinHostPort(host, strconv.Itoa(port)), cfg)
}

func takeConnNum() int {
	nextConnNumMutex.Lock()
	defer nextConnNumMutex.Unlock()
	n := nextConnNum
	nextConnNum++
	return n
}

// Dial opens a connection to the IMAP server without authenticating.
// Only the connection establishment is retried.
func Dial(host string, port int) (c *Client, err error) {
	connNum := takeConnNum()

	err = retry.Retry(func() error {
		debugLog(connNum, "", "establishing connection", "host", host, "port", port)
		conn, err := dialHost(host, port)
		if err != nil {
			debugLog(connNum, "", "failed to connect", "error", err)
			return err
		}
		c = &Client{
			conn:      conn,
			Host:      host,
			Port:      port,
			Delimiter: DefaultDelimiter,
			Connected: true,
			ConnNum:   connNum,
		}
		return nil
	}, RetryCount, func(err error) error {
		debugLog(connNum, "", "failed to connect, retrying shortly", "error", err)
		if c != nil && c.conn != nil {
			_ = c.conn.Close()
		}
		return nil
	}, func() error {
		debugLog(connNum, "", "retrying connection now")
		return nil
	})
	if err != nil {
		errorLog(connNum, "", "failed to establish connection", "host", host, "port", port, "error", err)
		if c != nil && c.conn != nil {
			_ = c.conn.Close()
		}
		return nil, err
	}
	return c, nil
}

// New creates a new IMAP connection using username/password authentication
func New(username string, password string, host string, port int) (*Client, error) {
	c, err := Dial(host, port)
	if err != nil {
		return nil, err
	}

	// No retry for auth failures
	if err := c.Login(username, password); err != nil {
		debugLog(c.ConnNum, "", "authentication failed", "error", err)
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// NewWithOAuth2 creates a new IMAP connection using OAuth2 authentication
func NewWithOAuth2(username string, accessToken string, host string, port int) (*Client, error) {
	c, err := Dial(host, port)
	if err != nil {
		return nil, err
	}

	if err := c.Authenticate(username, accessToken); err != nil {
		debugLog(c.ConnNum, "", "authentication failed", "error", err)
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// Clone opens a second connection with the same credentials and mailbox
func (c *Client) Clone() (c2 *Client, err error) {
	if c.useXOAUTH2 {
		c2, err = NewWithOAuth2(c.Username, c.Password, c.Host, c.Port)
	} else {
		c2, err = New(c.Username, c.Password, c.Host, c.Port)
	}
	if err != nil {
		return nil, err
	}
	c2.Delimiter = c.Delimiter
	if c.Folder != "" {
		if _, err = c2.Select(c.Folder, c.ReadOnly); err != nil {
			_ = c2.Close()
			return nil, fmt.Errorf("imap clone: %w", err)
		}
	}
	return c2, nil
}

// IsAuthenticated reports whether the last LOGIN or AUTHENTICATE succeeded
func (c *Client) IsAuthenticated() bool {
	return c.Connected && c.authenticated
}

// Close closes the IMAP connection
func (c *Client) Close() (err error) {
	if c.Connected {
		debugLog(c.ConnNum, c.Folder, "closing connection")
		c.Connected = false
		c.authenticated = false
		if err = c.conn.Close(); err != nil {
			return fmt.Errorf("imap close: %w", err)
		}
	}
	return nil
}

// Reconnect closes and reopens the IMAP connection with re-authentication
func (c *Client) Reconnect() (err error) {
	_ = c.Close()
	debugLog(c.ConnNum, c.Folder, "reopening connection")

	conn, err := dialHost(c.Host, c.Port)
	if err != nil {
		return fmt.Errorf("imap reconnect dial: %w", err)
	}
	c.conn = conn
	c.Connected = true

	if c.useXOAUTH2 {
		if err := c.Authenticate(c.Username, c.Password); err != nil {
			_ = c.Close()
			return fmt.Errorf("imap reconnect auth xoauth2: %w", err)
		}
	} else {
		if err := c.Login(c.Username, c.Password); err != nil {
			_ = c.Close()
			return fmt.Errorf("imap reconnect login: %w", err)
		}
	}

	if c.Folder != "" {
		if _, err := c.Select(c.Folder, c.ReadOnly); err != nil {
			return fmt.Errorf("imap reconnect select: %w", err)
		}
	}

	return nil
}
