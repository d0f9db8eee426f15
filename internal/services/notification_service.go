package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"kilroy/internal/domain/entities"
)

// Notifier receives zone transitions from the ProximityAggregator. On a
// device these would drive haptics and a reveal card; on the server they are
// logged and published to subscribers.
type Notifier interface {
	ZoneEntered(ctx context.Context, event entities.ZoneEvent)
	ZoneLeft(ctx context.Context, event entities.ZoneEvent)
}

// PinEventPublisher receives dropped-pin lifecycle events from PinService.
type PinEventPublisher interface {
	PublishPinEvent(ctx context.Context, event entities.PinEvent)
}

// NotificationService logs every zone transition and pin event. It satisfies
// both Notifier and PinEventPublisher.
type NotificationService struct{}

func NewNotificationService() *NotificationService {
	return &NotificationService{}
}

// ZoneEntered logs the "memories nearby" alert.
func (s *NotificationService) ZoneEntered(ctx context.Context, event entities.ZoneEvent) {
	log.Printf("[NOTIFICATION] %d memories nearby at (%.5f, %.5f) [%s]",
		event.Total,
		event.Location.Latitude, event.Location.Longitude,
		formatCounts(event.Counts),
	)
}

// ZoneLeft logs leaving the zone; the reveal card is hidden.
func (s *NotificationService) ZoneLeft(ctx context.Context, event entities.ZoneEvent) {
	log.Printf("[NOTIFICATION] Left memory zone at (%.5f, %.5f)",
		event.Location.Latitude, event.Location.Longitude)
}

func (s *NotificationService) PublishPinEvent(ctx context.Context, event entities.PinEvent) {
	log.Printf("[NOTIFICATION] Pin %s %s at (%.5f, %.5f)",
		event.PinID, event.Action, event.Location.Latitude, event.Location.Longitude)
}

func formatCounts(counts map[entities.SourceKind]int) string {
	parts := make([]string, 0, len(counts))
	for kind, n := range counts {
		parts = append(parts, fmt.Sprintf("%s=%d", kind, n))
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}

// MultiNotifier fans every event out to each wrapped notifier in order.
type MultiNotifier []Notifier

func (m MultiNotifier) ZoneEntered(ctx context.Context, event entities.ZoneEvent) {
	for _, n := range m {
		n.ZoneEntered(ctx, event)
	}
}

func (m MultiNotifier) ZoneLeft(ctx context.Context, event entities.ZoneEvent) {
	for _, n := range m {
		n.ZoneLeft(ctx, event)
	}
}

// MultiPinPublisher fans pin events out to each wrapped publisher in order.
type MultiPinPublisher []PinEventPublisher

func (m MultiPinPublisher) PublishPinEvent(ctx context.Context, event entities.PinEvent) {
	for _, p := range m {
		p.PublishPinEvent(ctx, event)
	}
}
