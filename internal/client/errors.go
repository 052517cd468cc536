package client

import "errors"

var (
	ErrNoReachableEndpoint = errors.New("no reachable endpoint")
	ErrConnectTimeout      = errors.New("connect attempt timed out")
	ErrConnectionDown      = errors.New("connection is down")
	ErrNotInRoom           = errors.New("not in a room")
)
