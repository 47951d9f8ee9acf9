package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"ironrails/internal/api"
	"ironrails/internal/game"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type Identity struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
	Token    string `json:"token"`
}

func (c *Client) NewIdentity(ctx context.Context, name string) (Identity, error) {
	var out Identity
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/identity", "", map[string]any{"name": name}, &out)
	return out, err
}

func (c *Client) CreateGame(ctx context.Context, token string) (*game.Record, error) {
	var out game.Record
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/games", token, map[string]any{}, &out)
	return &out, err
}

func (c *Client) LobbyGames(ctx context.Context, token string) ([]*game.Record, error) {
	var out struct {
		Games []*game.Record `json:"games"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/games", token, nil, &out)
	return out.Games, err
}

func (c *Client) Game(ctx context.Context, token, gameID string) (*game.Record, error) {
	var out game.Record
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/games/"+gameID, token, nil, &out)
	return &out, err
}

func (c *Client) JoinGame(ctx context.Context, token, gameID string) (*game.Record, error) {
	var out game.Record
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/games/"+gameID+"/join", token, map[string]any{}, &out)
	return &out, err
}

func (c *Client) StartGame(ctx context.Context, token, gameID string) (*game.Record, error) {
	var out game.Record
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/games/"+gameID+"/start", token, map[string]any{}, &out)
	return &out, err
}

func (c *Client) BuyShare(ctx context.Context, token, gameID, company string) (*game.Record, error) {
	var out game.Record
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/games/"+gameID+"/buy", token, map[string]any{"company": company}, &out)
	return &out, err
}

func (c *Client) PassTurn(ctx context.Context, token, gameID string) (*game.Record, error) {
	var out game.Record
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/games/"+gameID+"/pass", token, map[string]any{}, &out)
	return &out, err
}

func (c *Client) UpgradeTrack(ctx context.Context, token, gameID string) (*game.Record, error) {
	var out game.Record
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/games/"+gameID+"/upgrade", token, map[string]any{}, &out)
	return &out, err
}

func (c *Client) Operate(ctx context.Context, token, gameID, payout string) (*game.Record, error) {
	var out game.Record
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/games/"+gameID+"/operate", token, map[string]any{"payout": payout}, &out)
	return &out, err
}

func (c *Client) Replay(ctx context.Context, token string, commands []api.ReplayCommand) ([]api.ReplayResult, error) {
	var out struct {
		Results []api.ReplayResult `json:"results"`
	}
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/sync/replay", token, map[string]any{"commands": commands}, &out)
	return out.Results, err
}

// Watch dials the websocket subscription and decodes each committed record
// onto the returned channel until ctx ends or the server hangs up.
func (c *Client) Watch(ctx context.Context, token, gameID string) (<-chan *game.Record, error) {
	wsURL := strings.Replace(c.BaseURL, "http", "ws", 1) +
		"/v1/games/" + gameID + "/watch?token=" + token
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("watch dial: status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("watch dial: %w", err)
	}

	ch := make(chan *game.Record, 1)
	go func() {
		defer close(ch)
		defer conn.Close()
		go func() {
			<-ctx.Done()
			conn.Close()
		}()
		for {
			var rec game.Record
			if err := conn.ReadJSON(&rec); err != nil {
				return
			}
			select {
			case ch <- &rec:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (c *Client) jsonRequest(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
