package imap

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	retry "github.com/StirlingMarketingGroup/go-retry"
	"github.com/rs/xid"
)

const nl = "\r\n"

var literalRE = regexp.MustCompile(`{\d+}$`)

// CommandError is returned when the server completes a command with NO or BAD.
// Such failures are final and are not retried.
type CommandError struct {
	Command string
	Status  string
	Text    string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("imap command %s failed: %s %s", commandName(e.Command), e.Status, e.Text)
}

// commandName keeps credentials out of error messages
func commandName(command string) string {
	if i := strings.IndexByte(command, ' '); i != -1 {
		return command[:i]
	}
	return command
}

// newTag returns a unique command tag: 20 uppercase base32hex characters.
func newTag() []byte {
	return []byte(strings.ToUpper(xid.New().String()))
}

// Exec executes an IMAP command with retry logic and response building.
// processLine receives every untagged line, literals included.
func (c *Client) Exec(command string, buildResponse bool, retryCount int, processLine func(line []byte) error) (response string, err error) {
	var resp strings.Builder
	var cmdErr *CommandError
	err = retry.Retry(func() (err error) {
		if !c.Connected {
			return errors.New("imap: not connected")
		}
		tag := newTag()

		if CommandTimeout != 0 {
			_ = c.conn.SetDeadline(time.Now().Add(CommandTimeout))
			defer func() { _ = c.conn.SetDeadline(time.Time{}) }()
		}

		cmd := fmt.Sprintf("%s %s%s", tag, command, nl)

		if Verbose {
			debugLog(c.ConnNum, c.Folder, "sending command", "command", redactCommand(strings.TrimSpace(cmd), c.authSecret))
		}

		if _, err = c.conn.Write([]byte(cmd)); err != nil {
			return err
		}

		r := bufio.NewReader(c.conn)

		if buildResponse {
			resp = strings.Builder{}
		}
		var line []byte
		for err == nil {
			line, err = r.ReadBytes('\n')
			if err != nil {
				return err
			}
			for {
				a := literalRE.Find(dropNl(line))
				if a == nil {
					break
				}
				var n int
				n, err = strconv.Atoi(string(a[1 : len(a)-1]))
				if err != nil {
					return err
				}

				buf := make([]byte, n)
				if _, err = io.ReadFull(r, buf); err != nil {
					return err
				}
				line = append(line, buf...)

				if buf, err = r.ReadBytes('\n'); err != nil {
					return err
				}
				line = append(line, buf...)
			}

			if Verbose && !SkipResponses {
				debugLog(c.ConnNum, c.Folder, "server response", "response", string(dropNl(line)))
			}

			if status, text, ok := tagged(line, tag); ok {
				if status != "OK" {
					cmdErr = &CommandError{Command: command, Status: status, Text: text}
				}
				return nil
			}

			if processLine != nil {
				if err = processLine(line); err != nil {
					return err
				}
			}
			if buildResponse {
				resp.Write(line)
			}
		}
		return err
	}, retryCount, func(err error) error {
		warnLog(c.ConnNum, c.Folder, "command failed, closing connection", "command", commandName(command), "error", err)
		_ = c.Close()
		return nil
	}, func() error {
		return c.Reconnect()
	})
	if err != nil {
		errorLog(c.ConnNum, c.Folder, "command retries exhausted", "command", commandName(command), "error", err)
		return "", err
	}
	if cmdErr != nil {
		return "", cmdErr
	}

	if buildResponse {
		return resp.String(), nil
	}
	return "", nil
}

// tagged reports whether line is the tagged completion of tag, returning
// its status (OK, NO, BAD) and trailing text.
func tagged(line, tag []byte) (status, text string, ok bool) {
	if len(line) <= len(tag) || !bytes.Equal(line[:len(tag)], tag) || line[len(tag)] != ' ' {
		return "", "", false
	}
	rest := string(dropNl(line[len(tag)+1:]))
	status, text, _ = strings.Cut(rest, " ")
	return strings.ToUpper(status), text, true
}
