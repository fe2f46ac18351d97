package imap

import (
	"strconv"
	"strings"
)

// searchBody strips the untagged "* SEARCH" prefix from a response line.
// ok is false for lines that are not SEARCH data.
func searchBody(line []byte) (body string, ok bool) {
	s := string(dropNl(line))
	const prefix = "* SEARCH"
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return "", false
	}
	rest := s[len(prefix):]
	if rest != "" && rest[0] != ' ' {
		return "", false
	}
	return rest, true
}

func searchCommand(verb string, criteria []string) string {
	if len(criteria) == 0 {
		criteria = []string{"ALL"}
	}
	return verb + " " + strings.Join(criteria, " ")
}

// search runs a SEARCH-like command and feeds every SEARCH data line to p
func (c *Client) search(command string, p *EmailIDParser) error {
	if c.Folder == "" {
		return ErrNoMailboxSelected
	}
	var parseErr error
	_, err := c.Exec(command, false, RetryCount, func(line []byte) error {
		body, ok := searchBody(line)
		if !ok || parseErr != nil {
			return nil
		}
		if err := p.Parse(body); err != nil {
			parseErr = &ResponseError{Command: commandName(command), Line: body, Err: err}
			parseFailureLog(c.ConnNum, c.Folder, "SEARCH", parseErr)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return parseErr
}

// SearchIDs returns the sequence numbers of the messages of the selected
// mailbox matching criteria. No criteria means ALL.
func (c *Client) SearchIDs(criteria ...string) ([]string, error) {
	var p EmailIDParser
	if err := c.search(searchCommand("SEARCH", criteria), &p); err != nil {
		return nil, err
	}
	return p.Values(), nil
}

// SearchIDsIn selects mailbox, then behaves like SearchIDs
func (c *Client) SearchIDsIn(mailbox string, criteria ...string) ([]string, error) {
	if err := c.SelectFolder(mailbox); err != nil {
		return nil, err
	}
	return c.SearchIDs(criteria...)
}

// GetUIDs retrieves message UIDs matching a search criteria
func (c *Client) GetUIDs(search string) ([]int, error) {
	p := EmailIDParser{Strict: true}
	if err := c.search(searchCommand("UID SEARCH", strings.Fields(search)), &p); err != nil {
		return nil, err
	}
	return parseUIDs(p.Tokens())
}

func parseUIDs(tokens TokenStream) ([]int, error) {
	uids := make([]int, 0, len(tokens))
	for _, t := range tokens {
		u, err := strconv.Atoi(t.Value)
		if err != nil {
			return nil, err
		}
		uids = append(uids, u)
	}
	return uids, nil
}
