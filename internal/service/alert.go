package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	defaultHTTPStatusThreshold = 300
	alertDeliveryTimeout       = 10 * time.Second
)

// AlertService pushes refresh-token reuse events to an ops webhook. Reuse of
// a consumed or revoked token is the replay signal the store's logs feed.
type AlertService struct {
	client     *http.Client
	log        *zap.SugaredLogger
	webhookURL string
}

func NewAlertService(log *zap.SugaredLogger, webhookURL string) *AlertService {
	return &AlertService{
		client:     &http.Client{},
		log:        log,
		webhookURL: webhookURL,
	}
}

// NotifyTokenReuse fires and forgets; a failing webhook must never affect
// the refresh flow's response. The delivery outlives the request context:
// the refresh handler responds 401 immediately, and a cancelled request
// must not abort the in-flight alert.
func (s *AlertService) NotifyTokenReuse(ctx context.Context, data map[string]interface{}) {
	go func() {
		if s.webhookURL == "" {
			return
		}

		payload, err := json.Marshal(data)
		if err != nil {
			s.log.Errorw("failed to marshal alert payload", "error", err)
			return
		}

		deliveryCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), alertDeliveryTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(deliveryCtx, http.MethodPost, s.webhookURL, bytes.NewBuffer(payload))
		if err != nil {
			s.log.Errorw("failed to create alert request", "error", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			s.log.Errorw("failed to send reuse alert", "error", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode >= defaultHTTPStatusThreshold {
			s.log.Warnw("reuse alert webhook returned non-2xx status", "status", resp.StatusCode)
		}
	}()
}
