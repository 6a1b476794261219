package moderation

import (
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/whisper/modbot/internal/metrics"
)

// ResultPublisher delivers a check result for a request.
type ResultPublisher interface {
	PublishModerationResult(requestID string, data []byte) error
}

// Responder answers moderation.check requests with the shared Filter.
type Responder struct {
	filter *Filter
	pub    ResultPublisher
	log    logrus.FieldLogger
}

// NewResponder returns a Responder publishing results through pub.
func NewResponder(filter *Filter, pub ResultPublisher, log logrus.FieldLogger) *Responder {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Responder{filter: filter, pub: pub, log: log.WithField("component", "responder")}
}

// Handle decodes one request, screens its text and publishes the result.
// Malformed requests are dropped and logged.
func (r *Responder) Handle(data []byte) {
	var req ModerationRequest
	if err := json.Unmarshal(data, &req); err != nil {
		r.log.WithError(err).Warn("failed to unmarshal request")
		return
	}
	if req.RequestID == "" {
		r.log.Warn("dropping request without request_id")
		return
	}

	source := req.Source
	if source == "" {
		source = "nats"
	}

	start := time.Now()
	verdict := r.filter.Check(req.Text)
	metrics.CheckDuration.Observe(time.Since(start).Seconds())
	metrics.MessagesChecked.WithLabelValues(source, metrics.ResultLabel(verdict.Blocked)).Inc()

	entry := r.log.WithFields(logrus.Fields{"request_id": req.RequestID, "source": source})
	if verdict.Blocked {
		entry.WithFields(logrus.Fields{"reason": verdict.Reason, "term": verdict.Term}).Info("flagged")
	} else {
		entry.Debug("clean")
	}

	resp := ModerationResult{
		RequestID: req.RequestID,
		Blocked:   verdict.Blocked,
		Reason:    verdict.Reason,
		Term:      verdict.Term,
	}
	respData, err := json.Marshal(resp)
	if err != nil {
		entry.WithError(err).Error("failed to marshal result")
		return
	}
	if err := r.pub.PublishModerationResult(req.RequestID, respData); err != nil {
		entry.WithError(err).Error("failed to publish result")
	}
}
