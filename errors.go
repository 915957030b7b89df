package sitestore

import "errors"

var (
	ErrNoRemote = errors.New("sitestore: no backup remote configured")
	ErrClosed   = errors.New("sitestore: site closed")
)
