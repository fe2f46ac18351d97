package imap

import (
	"fmt"

	"github.com/sqs/go-xoauth2"
)

// Authenticate performs XOAUTH2 authentication using an access token
func (c *Client) Authenticate(user string, accessToken string) (err error) {
	b64 := xoauth2.XOAuth2String(user, accessToken)
	c.authSecret = b64
	// Auth failures must not trigger reconnection
	_, err = c.Exec(fmt.Sprintf("AUTHENTICATE XOAUTH2 %s", b64), false, 0, nil)
	if err != nil {
		return err
	}
	c.Username, c.Password = user, accessToken
	c.useXOAUTH2 = true
	c.authenticated = true
	return nil
}

// Login performs LOGIN authentication using username and password
func (c *Client) Login(username string, password string) (err error) {
	c.authSecret = ""
	if password != "" {
		c.authSecret = quote(password)
	}
	_, err = c.Exec(fmt.Sprintf("LOGIN %s %s", quote(username), quote(password)), false, 0, nil)
	if err != nil {
		return err
	}
	c.Username, c.Password = username, password
	c.useXOAUTH2 = false
	c.authenticated = true
	return nil
}
