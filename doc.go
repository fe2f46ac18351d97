// Package imap provides a small IMAP client focused on listing mailboxes and
// collecting email identifiers.
//
// At its core are two tokenizers for server response lines:
//
//   - ParseMailboxList turns the body of a LIST response such as
//     (\HasNoChildren) "/" "My Mailbox" into Attribute and PathSegment tokens
//   - ParseEmailIDs turns the body of a SEARCH response such as 1 2 3 into
//     Identifier tokens
//
// Both return a fresh TokenStream per call. MailboxListParser and
// EmailIDParser wrap them for callers that accumulate tokens over several
// lines and Reset in between.
//
// The Client connects over TLS, authenticates with LOGIN or XOAUTH2, and
// feeds LIST and SEARCH responses to the tokenizers.
package imap
