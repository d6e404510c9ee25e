// Package notification fans a notification out to a tenant's active contact
// points.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"project-alert-service/internal/apperr"
	"project-alert-service/internal/logging"
	"project-alert-service/internal/metrics"
	"project-alert-service/internal/models"
)

// ContactPointStore lists a tenant's active delivery channels.
type ContactPointStore interface {
	GetContactPointsByTenant(ctx context.Context, tenantID string) ([]models.ContactPoint, error)
}

// ChannelFunc delivers one notification through one contact point.
type ChannelFunc func(ctx context.Context, n models.Notification, cp models.ContactPoint) error

// Failure describes one failed delivery.
type Failure struct {
	TenantID       string
	ContactPointID string
	Channel        string
	RuleKey        string
	RecordID       string
	Err            error
	At             time.Time
}

const failureBuffer = 256

// Service is the notification sink. Deliveries are best effort: each contact
// point is tried independently and failures are reported on Failures.
type Service struct {
	store     ContactPointStore
	logger    *logging.Logger
	metrics   *metrics.Metrics
	wsManager *WebSocketManager

	mu            sync.RWMutex
	providerFuncs map[string]ChannelFunc

	failures chan Failure
}

// New constructs a Service with the in-app websocket channel registered.
func New(store ContactPointStore, logger *logging.Logger, m *metrics.Metrics) *Service {
	svc := &Service{
		store:     store,
		logger:    logger,
		metrics:   m,
		wsManager: NewWebSocketManager(logger),
		failures:  make(chan Failure, failureBuffer),
	}
	svc.providerFuncs = map[string]ChannelFunc{
		models.ChannelWebSocket: svc.sendWebSocket,
	}
	return svc
}

// Register adds or replaces the delivery function of a channel type.
func (s *Service) Register(channel string, fn ChannelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providerFuncs[channel] = fn
}

// WebSockets exposes the in-app connection manager.
func (s *Service) WebSockets() *WebSocketManager {
	return s.wsManager
}

// Failures streams failed deliveries. Reports are dropped when the buffer is full.
func (s *Service) Failures() <-chan Failure {
	return s.failures
}

// Send delivers n to every active contact point of n.TenantID. It returns a
// joined ErrSink error when any delivery fails; the others still run.
func (s *Service) Send(ctx context.Context, n models.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	cps, err := s.store.GetContactPointsByTenant(ctx, n.TenantID)
	if err != nil {
		return apperr.Wrap(apperr.ErrSink, fmt.Errorf("failed to load contact points: %w", err))
	}
	if len(cps) == 0 {
		s.logger.WithField("tenant_id", n.TenantID).Debug("No active contact points, nothing to send")
		return nil
	}

	var errs []error
	for _, cp := range cps {
		if err := s.dispatch(ctx, n, cp); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return apperr.Wrap(apperr.ErrSink, errors.Join(errs...))
	}
	return nil
}

func (s *Service) dispatch(ctx context.Context, n models.Notification, cp models.ContactPoint) error {
	s.mu.RLock()
	provider, ok := s.providerFuncs[cp.Type]
	s.mu.RUnlock()

	var err error
	if !ok {
		err = fmt.Errorf("no provider for channel %q", cp.Type)
	} else {
		err = provider(ctx, n, cp)
	}
	if s.metrics != nil {
		s.metrics.ObserveDelivery(cp.Type, err)
	}
	if err == nil {
		return nil
	}

	cpID := uuid.UUID(cp.ID).String()
	s.report(Failure{
		TenantID:       n.TenantID,
		ContactPointID: cpID,
		Channel:        cp.Type,
		RuleKey:        n.RuleKey,
		RecordID:       n.RecordID,
		Err:            err,
		At:             time.Now().UTC(),
	})
	return fmt.Errorf("%s %s: %w", cp.Type, cpID, err)
}

func (s *Service) report(f Failure) {
	select {
	case s.failures <- f:
	default:
		s.logger.WithField("tenant_id", f.TenantID).Warnf("Failure channel full, dropping report for %s: %v", f.Channel, f.Err)
	}
}

// sendWebSocket pushes n to the tenant's open in-app connections. Having no
// open connection is not an error.
func (s *Service) sendWebSocket(_ context.Context, n models.Notification, _ models.ContactPoint) error {
	message, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	delivered := s.wsManager.SendToTenant(n.TenantID, message)
	s.logger.WithField("tenant_id", n.TenantID).Debugf("In-app notification delivered to %d connections", delivered)
	return nil
}

// LogFailures logs every reported failure until ctx is done.
func (s *Service) LogFailures(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case f := <-s.failures:
				s.logger.WithField("tenant_id", f.TenantID).
					WithField("channel", f.Channel).
					WithField("contact_point_id", f.ContactPointID).
					WithField("rule_key", f.RuleKey).
					WithField("record_id", f.RecordID).
					Errorf("Notification delivery failed: %v", f.Err)
			}
		}
	}()
}
