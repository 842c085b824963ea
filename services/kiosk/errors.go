package kiosk

import "errors"

// ErrAccessDenied reports that no valid token was available at the
// moment an action had to be sent. It is terminal to the operation:
// the session stays non-functional until an operator re-provisions the
// machine or a fresh load restarts negotiation. No retry is attempted.
var ErrAccessDenied = errors.New("access denied: no valid session token")
