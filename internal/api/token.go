package api

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

var ErrNoToken = errors.New("api: no admin token")

// TokenSource is the token store shared by REST calls and the realtime channel.
type TokenSource interface {
	Token() (string, error)
}

type StaticToken string

func (t StaticToken) Token() (string, error) {
	v := strings.TrimSpace(string(t))
	if v == "" {
		return "", ErrNoToken
	}
	return v, nil
}

// FileToken re-reads the file on every call, so a rotated token is picked up
// by the next request or reconnect.
type FileToken string

func (f FileToken) Token() (string, error) {
	b, err := os.ReadFile(string(f))
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	v := strings.TrimSpace(string(b))
	if v == "" {
		return "", ErrNoToken
	}
	return v, nil
}
