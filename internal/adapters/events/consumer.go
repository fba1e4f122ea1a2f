// Package events registers and deletes workflows from Kafka change events.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/jobrunner/geoflow/internal/domain"
	"github.com/jobrunner/geoflow/internal/logging"
	"github.com/jobrunner/geoflow/internal/ports/input"
)

// Event operations.
const (
	OpRegister = "register"
	OpDelete   = "delete"
)

// Event is a workflow change message.
type Event struct {
	Version    int                     `json:"version"`
	Op         string                  `json:"op"`
	ID         string                  `json:"id,omitempty"`
	Definition json.RawMessage         `json:"definition,omitempty"`
	Metadata   domain.WorkflowMetadata `json:"metadata"`
}

// Consumer applies workflow events to a workflow service.
type Consumer struct {
	cfg       Config
	workflows input.WorkflowService
	logger    *slog.Logger
}

// New creates a consumer.
func New(cfg Config, workflows input.WorkflowService, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{cfg: cfg.withDefaults(), workflows: workflows, logger: logger}
}

// Start consumes events until ctx is canceled.
func (c *Consumer) Start(ctx context.Context) error {
	if len(c.cfg.Brokers) == 0 {
		return errors.New("events: no brokers configured")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	handler := &groupHandler{process: c.ProcessOne}
	c.logger.Info("workflow event consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
			c.logger.Error("consumer error", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(2 * time.Second):
			}
		}
		if ctx.Err() != nil {
			c.logger.Info("workflow event consumer shutting down")
			return nil
		}
	}
}

// ProcessOne applies a single message. Undecodable messages and invalid workflows are
// logged and skipped since redelivery cannot fix them.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	log := c.logger.With("topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)

	var ev Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		log.Error("skipping undecodable workflow event", "error", err)
		return nil
	}

	switch ev.Op {
	case OpRegister:
		if len(ev.Definition) == 0 {
			log.Error("skipping register event without definition")
			return nil
		}
		id, err := c.workflows.Register(ctx, ev.Definition, ev.Metadata, c.cfg.Source)
		if errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrUnsupported) {
			log.Error("skipping invalid workflow", "error", err)
			return nil
		}
		if err != nil {
			return fmt.Errorf("register workflow: %w", err)
		}
		if ev.ID != "" && ev.ID != id {
			log.Warn("event workflow id differs from derived id", "event_id", ev.ID, "workflow_id", id)
		}
		log.InfoContext(logging.WithWorkflowID(ctx, id), "workflow registered from event")

	case OpDelete:
		err := c.workflows.Delete(ctx, ev.ID)
		if errors.Is(err, domain.ErrNotFound) {
			log.Debug("delete event for unknown workflow", "workflow_id", ev.ID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("delete workflow %s: %w", ev.ID, err)
		}
		log.Info("workflow deleted from event", "workflow_id", ev.ID)

	default:
		log.Warn("skipping workflow event with unknown op", "op", ev.Op)
	}
	return nil
}
