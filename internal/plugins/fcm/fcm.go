package fcm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"chaty/internal/config"
	"chaty/internal/core/domain"
	"chaty/internal/metrics"
	"chaty/pkg/logging"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	oauthjwt "golang.org/x/oauth2/jwt"
	"golang.org/x/sync/errgroup"
)

const (
	messagingScope = "https://www.googleapis.com/auth/firebase.messaging"
	maxParallel    = 8
)

// FCMClient sends notifications through the FCM HTTP v1 API with a service
// account. Access tokens are reused until shortly before expiry.
type FCMClient struct {
	log       *slog.Logger
	http      *http.Client
	projectID string
	endpoint  string
	tokens    oauth2.TokenSource
}

func NewFCMClient(log *slog.Logger, cfg config.FCMConfig, httpClient *http.Client) (*FCMClient, error) {
	if _, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(cfg.PrivateKey)); err != nil {
		return nil, fmt.Errorf("parse service account key: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	account := &oauthjwt.Config{
		Email:      cfg.ClientEmail,
		PrivateKey: []byte(cfg.PrivateKey),
		Scopes:     []string{messagingScope},
		TokenURL:   cfg.TokenURL,
	}
	// token exchanges go through httpClient too
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
	return &FCMClient{
		log:       log,
		http:      httpClient,
		projectID: cfg.ProjectID,
		endpoint:  strings.TrimRight(cfg.Endpoint, "/"),
		tokens:    oauth2.ReuseTokenSource(nil, account.TokenSource(tokenCtx)),
	}, nil
}

// SendPushNotification delivers to every token in parallel. Individual token
// failures are logged; an error is returned only when no token succeeded.
func (c *FCMClient) SendPushNotification(ctx context.Context, tokens []string, n domain.PushNotification) error {
	if len(tokens) == 0 {
		return nil
	}
	accessToken, err := c.tokens.Token()
	if err != nil {
		metrics.PushNotifications.WithLabelValues("auth_error").Add(float64(len(tokens)))
		return fmt.Errorf("fcm access token: %w", err)
	}

	var (
		mu       sync.Mutex
		failures []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	for _, token := range tokens {
		g.Go(func() error {
			if err := c.send(gctx, accessToken, token, n); err != nil {
				metrics.PushNotifications.WithLabelValues("error").Inc()
				c.log.WarnContext(gctx, "fcm - send - failed", logging.Err(err))
				mu.Lock()
				failures = append(failures, err)
				mu.Unlock()
				return nil
			}
			metrics.PushNotifications.WithLabelValues("ok").Inc()
			return nil
		})
	}
	_ = g.Wait()
	if len(failures) == len(tokens) {
		return fmt.Errorf("fcm: all %d deliveries failed: %w", len(tokens), errors.Join(failures...))
	}
	return nil
}

type message struct {
	Message messageBody `json:"message"`
}

type messageBody struct {
	Token        string            `json:"token"`
	Notification notification      `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

type notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (c *FCMClient) send(ctx context.Context, accessToken *oauth2.Token, token string, n domain.PushNotification) error {
	body, err := json.Marshal(message{Message: messageBody{
		Token:        token,
		Notification: notification{Title: n.Title, Body: n.Body},
		Data:         n.Data,
	}})
	if err != nil {
		return err
	}
	apiURL := fmt.Sprintf("%s/v1/projects/%s/messages:send", c.endpoint, c.projectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	accessToken.SetAuthHeader(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("fcm request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("fcm error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
