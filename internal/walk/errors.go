package walk

import "errors"

var (
	// ErrAlreadyWalking is returned by Start while a session is active.
	ErrAlreadyWalking = errors.New("walk already in progress")
	// ErrNotWalking is returned by Stop and MarkAnchor while idle.
	ErrNotWalking = errors.New("no walk in progress")
	// ErrAnchorsExhausted is returned by MarkAnchor once every anchor has been confirmed.
	ErrAnchorsExhausted = errors.New("no anchors remaining")
	// ErrPersist wraps sink failures at Stop. The session is idle regardless.
	ErrPersist = errors.New("persist session record")
)
