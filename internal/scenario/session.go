// Package scenario drives the remote booking widget through the two-phase
// checkout flow. It talks to the browser only through the Session contract,
// so the engine never depends on a concrete driver.
package scenario

import (
	"context"
	"time"
)

// Session is one remote-UI session. Selectors are plain CSS; element
// addressing is (selector, index) over the current match list.
type Session interface {
	// Navigate opens url and returns the final URL after redirects.
	Navigate(ctx context.Context, url string) (string, error)
	// WaitFor blocks until selector matches at least one element or the
	// timeout elapses.
	WaitFor(selector string, timeout time.Duration) error
	// Count returns how many elements currently match selector.
	Count(selector string) (int, error)
	// Text returns the visible text of match index.
	Text(selector string, index int) (string, error)
	// Click scrolls match index into view and clicks it.
	Click(selector string, index int) error
	// Fill clears match index and types value into it.
	Fill(selector string, index int, value string) error
	// Checked reports the checked state of a checkbox match.
	Checked(selector string, index int) (bool, error)
	// Attr returns the named attribute of match index, "" when absent.
	Attr(selector string, index int, name string) (string, error)
	// CurrentURL returns the page URL at the time of the call.
	CurrentURL() string
	// ExportState serializes enough session context (cookies, local
	// storage) to resume later via SessionOptions.State.
	ExportState() ([]byte, error)
	// ObservedResponse reports the URL of a network response seen during
	// the session whose URL contains substr (case-insensitive).
	ObservedResponse(substr string) (string, bool)
	// WaitPopup waits for a secondary page to open and returns its URL.
	WaitPopup(timeout time.Duration) (string, error)
	// Close releases the session and its browser resources.
	Close() error
}

// SessionOptions configures a new session.
type SessionOptions struct {
	// State is an opaque blob previously produced by ExportState; empty
	// means a fresh session.
	State []byte
}

// SessionFactory opens remote-UI sessions.
type SessionFactory interface {
	NewSession(ctx context.Context, opts SessionOptions) (Session, error)
}
