package database

import "errors"

// ErrStoreClosed is returned when a cache is used after Close
var ErrStoreClosed = errors.New("cache store closed")
