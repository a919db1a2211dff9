package alert

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/domain"
)

// Publisher sends one notification; cloud.SNSClient implements it.
type Publisher interface {
	SendAlert(ctx context.Context, subject, message string) error
}

// Notifier publishes critical alerts once per raise. An alert id is
// published again only after a reading without it has cleared it.
type Notifier struct {
	pub Publisher

	mu     sync.Mutex
	raised map[string]map[string]bool
}

func NewNotifier(pub Publisher) *Notifier {
	return &Notifier{pub: pub, raised: make(map[string]map[string]bool)}
}

// Notify returns the alerts it published.
func (n *Notifier) Notify(ctx context.Context, deviceID string, alerts []domain.Alert) []domain.Alert {
	n.mu.Lock()
	defer n.mu.Unlock()

	prev := n.raised[deviceID]
	current := make(map[string]bool, len(alerts))
	var fresh []domain.Alert
	for _, a := range alerts {
		if a.Level != domain.LevelCritical {
			continue
		}
		if prev[a.ID] {
			current[a.ID] = true
			continue
		}
		fresh = append(fresh, a)
	}

	var sent []domain.Alert
	if len(fresh) > 0 {
		if err := n.pub.SendAlert(ctx, subject(deviceID, fresh), message(deviceID, fresh)); err != nil {
			log.Error().Err(err).Str("device", deviceID).Int("alerts", len(fresh)).Msg("alert notification failed")
		} else {
			for _, a := range fresh {
				current[a.ID] = true
			}
			sent = fresh
		}
	}
	n.raised[deviceID] = current
	return sent
}

// Forget drops the raised state of a device, e.g. when its stream stops.
func (n *Notifier) Forget(deviceID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.raised, deviceID)
}

func subject(deviceID string, alerts []domain.Alert) string {
	if len(alerts) == 1 {
		return fmt.Sprintf("BESS Alert: %s on %s", alerts[0].Message, deviceID)
	}
	return fmt.Sprintf("BESS Alert: %d critical alerts on %s", len(alerts), deviceID)
}

func message(deviceID string, alerts []domain.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Critical alerts for device %s\n\n", deviceID)
	for i, a := range alerts {
		fmt.Fprintf(&b, "%d. %s", i+1, a.Message)
		if !a.Timestamp.IsZero() {
			fmt.Fprintf(&b, " (%s)", a.Timestamp.Format("2006-01-02 15:04:05"))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// LogPublisher writes notifications to the log instead of a topic.
type LogPublisher struct{}

func (LogPublisher) SendAlert(_ context.Context, subject, message string) error {
	log.Warn().Str("subject", subject).Msg(strings.TrimSpace(message))
	return nil
}
