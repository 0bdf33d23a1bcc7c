package protocol

import (
	"errors"
	"fmt"
	"net/url"
)

// Application close codes sent by the server. Both mean the session can
// never succeed with the same credentials and board, so the client must
// not retry.
const (
	CloseUnauthorized  = 4001
	CloseBoardNotFound = 4004
)

// FatalCloseCode reports whether a close code ends the session for good.
func FatalCloseCode(code int) bool {
	return code == CloseUnauthorized || code == CloseBoardNotFound
}

// ErrBadBase is returned by SyncURL for a base URL whose scheme cannot
// carry a websocket.
var ErrBadBase = errors.New("protocol: base URL is not http(s) or ws(s)")

// SyncURL derives the websocket endpoint for a board from an API base URL.
// http becomes ws and https becomes wss; ws and wss pass through. The
// token rides in the query string because browser websocket clients cannot
// set headers, and the dev server keeps the same contract.
func SyncURL(base, boardID, token string) (string, error) {
	if boardID == "" {
		return "", errors.New("protocol: empty board id")
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("protocol.SyncURL: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("protocol.SyncURL: %q: %w", u.Scheme, ErrBadBase)
	}

	// JoinPath keeps the pre-escaped board id intact in RawPath, so ids
	// containing path-significant characters survive String().
	u = u.JoinPath("ws", "board", url.PathEscape(boardID), "sync")

	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	return u.String(), nil
}
