// Package telegram resolves a user's profile picture through the Bot API:
// getUserProfilePhotos followed by getFile.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// DefaultBaseURL is the public Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

// ErrNoAvatar is returned when the user has no visible profile photo.
var ErrNoAvatar = errors.New("telegram: user has no profile photo")

// Client resolves avatars through the Bot API.
type Client struct {
	Token      string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *logrus.Logger
}

// NewClient returns a client for token with a 5s request timeout.
func NewClient(token, baseURL string, logger *logrus.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		Token:      token,
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
		Logger:     logger,
	}
}

// ctxClient binds every bot request to ctx.
type ctxClient struct {
	ctx  context.Context
	base *http.Client
}

func (c ctxClient) Do(req *http.Request) (*http.Response, error) {
	return c.base.Do(req.WithContext(c.ctx))
}

// bot builds a BotAPI for one lookup. NewBotAPI is skipped because it calls
// getMe before returning.
func (c *Client) bot(ctx context.Context) *tgbotapi.BotAPI {
	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	bot := &tgbotapi.BotAPI{
		Token:  c.Token,
		Buffer: 100,
		Client: ctxClient{ctx: ctx, base: hc},
	}
	bot.SetAPIEndpoint(c.BaseURL + "/bot%s/%s")
	return bot
}

// ResolveAvatar returns a downloadable URL for the largest size of the user's
// most recent profile photo.
func (c *Client) ResolveAvatar(ctx context.Context, accountID string) (string, error) {
	if accountID == "" {
		return "", fmt.Errorf("telegram: account id empty")
	}
	userID, err := strconv.ParseInt(accountID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("telegram: account id %q is not a user id: %w", accountID, err)
	}

	bot := c.bot(ctx)
	photos, err := bot.GetUserProfilePhotos(tgbotapi.UserProfilePhotosConfig{UserID: userID, Limit: 1})
	if err != nil {
		return "", fmt.Errorf("telegram getUserProfilePhotos: %w", err)
	}
	if len(photos.Photos) == 0 || len(photos.Photos[0]) == 0 {
		return "", ErrNoAvatar
	}
	sizes := photos.Photos[0]

	file, err := bot.GetFile(tgbotapi.FileConfig{FileID: sizes[len(sizes)-1].FileID})
	if err != nil {
		return "", fmt.Errorf("telegram getFile: %w", err)
	}
	if file.FilePath == "" {
		return "", ErrNoAvatar
	}
	// File.Link always points at api.telegram.org
	return fmt.Sprintf("%s/file/bot%s/%s", c.BaseURL, c.Token, file.FilePath), nil
}
