package handlers

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rohits-web03/vectorvault/internal/utils"
)

const loginFlow = "login"

var errStateMismatch = errors.New("oauth state mismatch")

// oauthState travels through the provider as "<nonce>.<payload>" and is
// mirrored in the oauth_state cookie.
type oauthState struct {
	Flow string `json:"flow"`
}

func newState(flow string) (string, error) {
	nonce, err := utils.RandomToken(16)
	if err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	payload, err := json.Marshal(oauthState{Flow: flow})
	if err != nil {
		return "", err
	}
	return nonce + "." + base64.RawURLEncoding.EncodeToString(payload), nil
}

// verifyState compares the callback state with the cookie copy in
// constant time and decodes its payload.
func verifyState(got, want string) (*oauthState, error) {
	if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		return nil, errStateMismatch
	}
	_, encoded, ok := strings.Cut(got, ".")
	if !ok {
		return nil, fmt.Errorf("%w: missing payload", errStateMismatch)
	}
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errStateMismatch, err)
	}
	var st oauthState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("%w: %v", errStateMismatch, err)
	}
	return &st, nil
}
