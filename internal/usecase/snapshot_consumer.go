package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"MacroSim/internal/domain/models"
	applogger "MacroSim/pkg/logger"
)

// SnapshotUpdateHandler applies estimator snapshot updates pushed over
// Kafka. Malformed payloads are logged and dropped rather than retried, so
// a poison message cannot stall the topic.
type SnapshotUpdateHandler struct {
	topic    string
	provider *SnapshotProvider
	log      *applogger.Logger
}

func NewSnapshotUpdateHandler(topic string, provider *SnapshotProvider, log *applogger.Logger) *SnapshotUpdateHandler {
	return &SnapshotUpdateHandler{topic: topic, provider: provider, log: log}
}

func (h *SnapshotUpdateHandler) Topic() string { return h.topic }

func (h *SnapshotUpdateHandler) Handle(ctx context.Context, data []byte) error {
	var snap models.StateSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		if h.log != nil {
			h.log.Warn("dropping malformed snapshot message", applogger.Error(err))
		}
		return nil
	}
	if !snap.Valid() {
		if h.log != nil {
			h.log.Warn("dropping incomplete snapshot message",
				applogger.Int64("version", snap.Version))
		}
		return nil
	}

	applied := h.provider.Apply(ctx, snap)
	if h.log != nil {
		h.log.Info(fmt.Sprintf("snapshot update consumed from %s", h.topic),
			applogger.Int64("version", applied.Version))
	}
	return nil
}
