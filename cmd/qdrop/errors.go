package main

import (
	"errors"

	"github.com/qdrop/qdrop/internal/engine"
)

func isRejected(err error) bool {
	return errors.Is(err, engine.ErrRejected)
}

func isCancelled(err error) bool {
	return errors.Is(err, engine.ErrCancelled)
}

func isNetworkError(err error) bool {
	var netErr *engine.NetworkError
	return errors.As(err, &netErr)
}
