package messenger

import (
	"encoding/json"
	"fmt"
)

const (
	methodLogin          = "login"
	methodGetAppState    = "getAppState"
	methodSendMessage    = "sendMessage"
	methodGetUserID      = "getUserID"
	methodGetUserInfo    = "getUserInfo"
	methodGetFriendsList = "getFriendsList"
	methodListen         = "listen"
)

type request struct {
	ID     string `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// frame is any message the gateway pushes: a call result or a listen event.
type frame struct {
	ID     string          `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *remoteError    `json:"error,omitempty"`
	Event  json.RawMessage `json:"event,omitempty"`
}

type remoteError struct {
	Message string `json:"error"`
}

// GatewayError is a call the gateway answered with an error.
type GatewayError struct {
	Method  string
	Message string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("messenger %s: %s", e.Method, e.Message)
}

type loginParams struct {
	Email    string          `json:"email,omitempty"`
	Password string          `json:"password,omitempty"`
	AppState json.RawMessage `json:"appState,omitempty"`
}

type loginResult struct {
	AppState json.RawMessage `json:"appState"`
}

type sendMessageParams struct {
	Message  any    `json:"message"`
	ThreadID string `json:"threadID"`
}

type getUserIDParams struct {
	Name string `json:"name"`
}

type getUserInfoParams struct {
	IDs []string `json:"ids"`
}
