package push

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rowanhart/routinely/internal/model"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// ErrExpired marks a subscription the push service reported gone; callers
// should delete it rather than retry.
var ErrExpired = errors.New("push subscription expired")

const (
	subscriber = "mailto:noreply@routinely.local"
	payloadTTL = 86400 // seconds the push service may hold an undelivered message
)

// Payload is the notification body shown by the service worker.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
	Tag   string `json:"tag,omitempty"`
}

// Config holds the VAPID key pair. Push is optional; with either key blank
// the server runs without it.
type Config struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
}

func (c Config) Enabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

// Service sends web push notifications to stored browser subscriptions.
type Service struct {
	cfg Config
}

func NewService(publicKey, privateKey string) *Service {
	return &Service{cfg: Config{VAPIDPublicKey: publicKey, VAPIDPrivateKey: privateKey}}
}

// VAPIDPublicKey exposes the public key browsers need to subscribe.
func (s *Service) VAPIDPublicKey() string {
	return s.cfg.VAPIDPublicKey
}

// Send delivers one payload to one subscription. Returns ErrExpired when
// the endpoint answers 410 Gone.
func (s *Service) Send(sub *model.PushSubscription, payload Payload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	resp, err := webpush.SendNotification(data, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dhKey,
			Auth:   sub.AuthKey,
		},
	}, &webpush.Options{
		VAPIDPublicKey:  s.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: s.cfg.VAPIDPrivateKey,
		Subscriber:      subscriber,
		TTL:             payloadTTL,
	})
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusGone:
		return ErrExpired
	case resp.StatusCode >= 400:
		return fmt.Errorf("push service returned %d", resp.StatusCode)
	}
	return nil
}

// GenerateVAPIDKeys produces a fresh key pair for deployment setup.
func GenerateVAPIDKeys() (publicKey, privateKey string, err error) {
	privateKey, publicKey, err = webpush.GenerateVAPIDKeys()
	if err != nil {
		return "", "", fmt.Errorf("generate VAPID keys: %w", err)
	}
	return publicKey, privateKey, nil
}
