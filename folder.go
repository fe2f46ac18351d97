package imap

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	humanize "github.com/dustin/go-humanize"
)

var existsRE = regexp.MustCompile(`\* (\d+) EXISTS`)

// ErrNoMailboxSelected is returned by commands that need a selected mailbox.
var ErrNoMailboxSelected = errors.New("imap: no mailbox selected")

// ResponseError reports a server response line that could not be interpreted.
type ResponseError struct {
	Command string
	Line    string
	Err     error
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("imap %s: cannot interpret response %q: %s", e.Command, e.Line, e.Err)
}

func (e *ResponseError) Unwrap() error { return e.Err }

// Mailbox is one entry of a LIST response
type Mailbox struct {
	// Attributes without their leading backslash, e.g. HasNoChildren
	Attributes []string
	// Delimiter is the hierarchy delimiter; empty for NIL
	Delimiter string
	// Segments are the path tokens exactly as sent, e.g. ["/", "INBOX"]
	Segments []string
	// Name is the mailbox name with quoted-string escapes removed
	Name string
}

// HasAttribute reports whether the mailbox carries attr, ignoring case and
// an optional leading backslash.
func (m Mailbox) HasAttribute(attr string) bool {
	attr = strings.TrimPrefix(attr, `\`)
	for _, a := range m.Attributes {
		if strings.EqualFold(a, attr) {
			return true
		}
	}
	return false
}

func (m Mailbox) HasChildren() bool   { return m.HasAttribute("HasChildren") }
func (m Mailbox) HasNoChildren() bool { return m.HasAttribute("HasNoChildren") }
func (m Mailbox) NoInferiors() bool   { return m.HasAttribute("NoInferiors") }
func (m Mailbox) NoSelect() bool      { return m.HasAttribute("Noselect") }

// Path joins the raw path segments with sep
func (m Mailbox) Path(sep string) string {
	return JoinPath(m.Segments, sep)
}

// Levels splits the name on the hierarchy delimiter
func (m Mailbox) Levels() []string {
	if m.Delimiter == "" {
		return []string{m.Name}
	}
	return strings.Split(m.Name, m.Delimiter)
}

func (m Mailbox) String() string {
	return fmt.Sprintf("%s (%s) %v", m.Name, m.Delimiter, m.Attributes)
}

// JoinPath joins path segments with sep
func JoinPath(segments []string, sep string) string {
	return strings.Join(segments, sep)
}

// mailboxFromTokens builds a Mailbox out of a parsed LIST line. The first of
// several path segments is the delimiter, the rest make up the name.
func mailboxFromTokens(tokens TokenStream, defaultDelimiter string) (Mailbox, error) {
	m := Mailbox{
		Attributes: tokens.Attributes(),
		Segments:   tokens.PathSegments(),
	}
	switch len(m.Segments) {
	case 0:
		return m, errors.New("no mailbox name")
	case 1:
		m.Delimiter = defaultDelimiter
		m.Name = RemoveSlashes.Replace(m.Segments[0])
	default:
		if !strings.EqualFold(m.Segments[0], "NIL") {
			m.Delimiter = RemoveSlashes.Replace(m.Segments[0])
		}
		m.Name = RemoveSlashes.Replace(strings.Join(m.Segments[1:], ""))
	}
	return m, nil
}

// listBody strips the untagged "* LIST " prefix from a response line and
// turns a trailing literal mailbox name into a quoted string. ok is false
// for lines that are not LIST or LSUB data.
func listBody(line []byte) (body string, ok bool) {
	line = dropNl(line)
	if len(line) < 7 || line[0] != '*' || line[1] != ' ' {
		return "", false
	}
	verb := strings.ToUpper(string(line[2:6]))
	if (verb != "LIST" && verb != "LSUB") || (len(line) > 6 && line[6] != ' ') {
		return "", false
	}
	rest := line[6:]

	if b := bytes.IndexByte(rest, '\n'); b != -1 {
		head := dropNl(rest[:b+1])
		literal := string(rest[b+1:])
		if loc := literalRE.FindIndex(head); loc != nil {
			head = head[:loc[0]]
		}
		return strings.TrimSpace(string(head) + quote(literal)), true
	}
	return strings.TrimSpace(string(rest)), true
}

func listCommand(reference, pattern string) string {
	if pattern == "" {
		pattern = "*"
	}
	return fmt.Sprintf("LIST %s %s", quote(reference), quote(pattern))
}

// RawMailboxes returns the LIST data lines stripped of their framing, unparsed
func (c *Client) RawMailboxes(reference, pattern string) (lines []string, err error) {
	lines = make([]string, 0)
	_, err = c.Exec(listCommand(reference, pattern), false, RetryCount, func(line []byte) error {
		if body, ok := listBody(line); ok {
			lines = append(lines, body)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lines, nil
}

// ListMailboxes lists the mailboxes matching pattern under reference.
// An empty pattern means "*". A line that does not parse fails the whole
// listing with a *ResponseError.
func (c *Client) ListMailboxes(reference, pattern string) ([]Mailbox, error) {
	lines, err := c.RawMailboxes(reference, pattern)
	if err != nil {
		return nil, err
	}

	mailboxes, err := parseMailboxes(lines, c.Delimiter)
	if err != nil {
		parseFailureLog(c.ConnNum, c.Folder, "LIST", err)
		return nil, err
	}
	return mailboxes, nil
}

// parseMailboxes parses framing-stripped LIST lines, each with a fresh
// tokenizer. The first bad line aborts with a *ResponseError.
func parseMailboxes(lines []string, defaultDelimiter string) ([]Mailbox, error) {
	mailboxes := make([]Mailbox, 0, len(lines))
	for _, line := range lines {
		tokens, err := ParseMailboxList(line)
		if err == nil {
			var m Mailbox
			if m, err = mailboxFromTokens(tokens, defaultDelimiter); err == nil {
				mailboxes = append(mailboxes, m)
				continue
			}
		}
		return nil, &ResponseError{Command: "LIST", Line: line, Err: err}
	}
	return mailboxes, nil
}

// GetFolders returns the names of all mailboxes
func (c *Client) GetFolders() ([]string, error) {
	mailboxes, err := c.ListMailboxes("", "*")
	if err != nil {
		return nil, err
	}
	folders := make([]string, 0, len(mailboxes))
	for _, m := range mailboxes {
		folders = append(folders, m.Name)
	}
	return folders, nil
}

// Select opens a mailbox, read-only when readOnly is set (EXAMINE), and
// returns the number of messages it holds.
func (c *Client) Select(folder string, readOnly bool) (count int, err error) {
	verb := "SELECT"
	if readOnly {
		verb = "EXAMINE"
	}
	r, err := c.Exec(verb+" "+quote(folder), true, RetryCount, nil)
	if err != nil {
		return 0, err
	}
	matches := existsRE.FindStringSubmatch(r)
	if len(matches) < 2 {
		return 0, &ResponseError{Command: verb, Line: strings.TrimSpace(r), Err: errors.New("no EXISTS count")}
	}
	if count, err = strconv.Atoi(matches[1]); err != nil {
		return 0, &ResponseError{Command: verb, Line: matches[0], Err: err}
	}
	c.Folder = folder
	c.ReadOnly = readOnly
	return count, nil
}

// ExamineFolder selects a folder in read-only mode
func (c *Client) ExamineFolder(folder string) (err error) {
	_, err = c.Select(folder, true)
	return err
}

// SelectFolder selects a folder in read-write mode
func (c *Client) SelectFolder(folder string) (err error) {
	_, err = c.Select(folder, false)
	return err
}

// FolderStats represents statistics for a folder
type FolderStats struct {
	Name   string
	Count  int
	MaxUID int
	Error  error
}

func (s FolderStats) String() string {
	if s.Error != nil {
		return fmt.Sprintf("%s: %s", s.Name, s.Error)
	}
	return fmt.Sprintf("%s: %s messages, max UID %s", s.Name, humanize.Comma(int64(s.Count)), humanize.Comma(int64(s.MaxUID)))
}

// GetFolderStats examines every selectable mailbox, skipping excluded ones,
// and collects its message count and highest UID. Per-folder failures are
// recorded in FolderStats.Error. The previously selected mailbox is restored;
// when there was none, the client is left with no mailbox selected.
func (c *Client) GetFolderStats(excludedFolders ...string) ([]FolderStats, error) {
	mailboxes, err := c.ListMailboxes("", "*")
	if err != nil {
		return nil, err
	}

	excludeMap := make(map[string]bool, len(excludedFolders))
	for _, folder := range excludedFolders {
		excludeMap[folder] = true
	}

	currentFolder := c.Folder
	currentReadOnly := c.ReadOnly

	stats := make([]FolderStats, 0, len(mailboxes))
	for _, m := range mailboxes {
		if excludeMap[m.Name] || m.NoSelect() {
			continue
		}

		stat := FolderStats{Name: m.Name}
		if stat.Count, err = c.Select(m.Name, true); err != nil {
			stat.Error = err
			stats = append(stats, stat)
			continue
		}

		if stat.Count > 0 {
			uids, err := c.GetUIDs("ALL")
			if err != nil {
				stat.Error = err
			} else if len(uids) > 0 {
				stat.MaxUID = uids[len(uids)-1]
			}
		}
		stats = append(stats, stat)
	}

	if currentFolder != "" {
		_, _ = c.Select(currentFolder, currentReadOnly)
	} else {
		c.Folder, c.ReadOnly = "", false
	}

	return stats, nil
}
