package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Frame codes.
const (
	CodeUnknownKey   = -1
	CodeDuplicateKey = -2
	CodeVerified     = 1
	CodeNotification = 2
)

// Errors
var (
	ErrMissingKey = errors.New("hello frame has no key field")
)

// Hello is the credential frame a client sends right after connecting.
type Hello struct {
	Key string `json:"key"`
}

// DecodeHello parses a client hello. A frame without a key field is
// rejected; an empty key is a valid (if unknown) credential.
func DecodeHello(data []byte) (Hello, error) {
	var raw struct {
		Key *string `json:"key"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Hello{}, fmt.Errorf("decode hello: %w", err)
	}
	if raw.Key == nil {
		return Hello{}, ErrMissingKey
	}
	return Hello{Key: *raw.Key}, nil
}

// EncodeHello builds the client hello frame.
func EncodeHello(key string) ([]byte, error) {
	return json.Marshal(Hello{Key: key})
}

type verifiedFrame struct {
	Code       int    `json:"code"`
	ServerName string `json:"server_name"`
}

type notificationFrame struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type rejectFrame struct {
	Code int `json:"code"`
}

// Verified encodes the verification acknowledgement.
func Verified(serverName string) ([]byte, error) {
	return json.Marshal(verifiedFrame{Code: CodeVerified, ServerName: serverName})
}

// Notification encodes a routed payload.
func Notification(msg string) ([]byte, error) {
	return json.Marshal(notificationFrame{Code: CodeNotification, Msg: msg})
}

// UnknownKey encodes the unknown-key rejection.
func UnknownKey() ([]byte, error) {
	return json.Marshal(rejectFrame{Code: CodeUnknownKey})
}

// DuplicateKey encodes the duplicate-key rejection.
func DuplicateKey() ([]byte, error) {
	return json.Marshal(rejectFrame{Code: CodeDuplicateKey})
}

// ServerFrame is the client-side view of any server frame.
type ServerFrame struct {
	Code       int    `json:"code"`
	ServerName string `json:"server_name,omitempty"`
	Msg        string `json:"msg,omitempty"`
}

// DecodeServerFrame parses a server frame of any kind.
func DecodeServerFrame(data []byte) (ServerFrame, error) {
	var f ServerFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return ServerFrame{}, fmt.Errorf("decode server frame: %w", err)
	}
	switch f.Code {
	case CodeUnknownKey, CodeDuplicateKey, CodeVerified, CodeNotification:
		return f, nil
	default:
		return ServerFrame{}, fmt.Errorf("decode server frame: unknown code %d", f.Code)
	}
}
