package notify

import (
	"errors"
	"log/slog"

	"github.com/rowanhart/routinely/internal/push"
	"github.com/rowanhart/routinely/internal/store"
	ws "github.com/rowanhart/routinely/internal/websocket"
)

// Service delivers messages to parents: it always records a notification row,
// pushes to every registered device when web push is configured, and lets
// open dashboards know over the WebSocket hub. It satisfies
// routine.Notifier.
type Service struct {
	pushStore *store.PushStore
	pushSvc   *push.Service // nil when VAPID keys are not configured
	hub       *ws.Hub
	logger    *slog.Logger
}

func NewService(pushStore *store.PushStore, pushSvc *push.Service, hub *ws.Hub, logger *slog.Logger) *Service {
	return &Service{
		pushStore: pushStore,
		pushSvc:   pushSvc,
		hub:       hub,
		logger:    logger,
	}
}

// Notify records and delivers one message to a parent account. Delivery
// failures are logged, never returned: notification is best-effort and must
// not fail the operation that triggered it.
func (s *Service) Notify(userID int64, eventType, message, link string) {
	n, err := s.pushStore.CreateNotification(userID, eventType, message, link)
	if err != nil {
		s.logger.Error("record notification", "user_id", userID, "event", eventType, "error", err)
	}

	if s.hub != nil && n != nil {
		s.hub.Broadcast(ws.NewMessage("notification", "created", n.ID, map[string]any{
			"event_type": eventType,
			"message":    message,
		}))
	}

	if s.pushSvc == nil {
		return
	}

	subs, err := s.pushStore.ListByUser(userID)
	if err != nil {
		s.logger.Error("list push subscriptions", "user_id", userID, "error", err)
		return
	}

	payload := push.Payload{
		Title: "Routinely",
		Body:  message,
		URL:   link,
		Tag:   eventType,
	}
	for i := range subs {
		sub := &subs[i]
		err := s.pushSvc.Send(sub, payload)
		if errors.Is(err, push.ErrExpired) {
			if err := s.pushStore.DeleteByEndpoint(sub.Endpoint); err != nil {
				s.logger.Error("prune expired subscription", "error", err)
			}
			continue
		}
		if err != nil {
			s.logger.Warn("push delivery failed", "user_id", userID, "error", err)
		}
	}
}
