package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/rickgao/autowhitelist/internal/router"
	"github.com/rickgao/autowhitelist/internal/session"
	"github.com/rickgao/autowhitelist/internal/version"
)

// maxUploadSize bounds quiz uploads.
const maxUploadSize = 1 << 20

// Router is the subset of the router the HTTP layer uses.
type Router interface {
	session.Router
	Deliver(key, payload string)
	Online(ctx context.Context, key string) (bool, error)
	Stats(ctx context.Context) (router.Stats, error)
}

// Config holds configuration for the Handler.
type Config struct {
	AllowedOrigins []string
	WebDir         string // frontend root with templates/ and resources/; empty disables
	Session        session.Config
}

type codeResponse struct {
	Code int `json:"code"`
}

type testResponse struct {
	Code           int            `json:"code"`
	Data           map[string]any `json:"data"`
	IsServerOnline bool           `json:"is_server_online"`
}

type submitRequest struct {
	Answer   []any   `json:"answer"`
	PlayerID string  `json:"player_id"`
	PaperID  paperID `json:"paper_id"`
}

type submitResponse struct {
	Score int64 `json:"score"`
	Pass  bool  `json:"pass"`
	Count int64 `json:"count"`
}

type registerRequest struct {
	ServerName string `json:"server_name"`
}

type registerResponse struct {
	Code int    `json:"code"`
	Key  string `json:"key"`
}

type healthResponse struct {
	Status  string        `json:"status"`
	Store   string        `json:"store"`
	Router  *router.Stats `json:"router,omitempty"`
	Version version.Info  `json:"version"`
}

// paperID accepts a quiz id sent either as a JSON number or a numeric string.
type paperID int64

func (p *paperID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(s)
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil || n < 0 {
		return fmt.Errorf("paper_id %q is not a quiz id", data)
	}
	*p = paperID(n)
	return nil
}
