// Package downlink validates and forwards outbound device commands to
// the LoRaWAN network server, with per-attempt audit rows.
package downlink

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"agrisense/internal/db"
	"agrisense/internal/models"
)

var (
	// ErrInvalidHex rejects a command before any state change.
	ErrInvalidHex = errors.New("invalid hex payload")
	// ErrDeviceNotFound means the target device is not provisioned.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrNoNetworkServer means no network server is configured.
	ErrNoNetworkServer = errors.New("no network server configured")
)

var hexPattern = regexp.MustCompile(`^[0-9A-Fa-f]+$`)

// Store is the persistence surface for downlink audit rows.
type Store interface {
	DeviceByID(ctx context.Context, id string) (*models.Device, error)
	InsertDownlinkLog(ctx context.Context, l *models.DownlinkLog) error
	UpdateDownlinkStatus(ctx context.Context, id string, status models.DownlinkStatus, errText string) error
}

// Result reports a delivery attempt and its audit row.
type Result struct {
	Success bool
	LogID   string
}

// Service queues commands on the network server.
type Service struct {
	store     Store
	client    *resty.Client
	serverURL string
	apiToken  string
	log       *zap.Logger
}

// NewService creates the downlink service. serverURL may be empty when
// no network server is configured; sends then fail cleanly.
func NewService(store Store, serverURL, apiToken string, timeout time.Duration, log *zap.Logger) *Service {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Service{
		store:     store,
		client:    resty.New().SetTimeout(timeout),
		serverURL: serverURL,
		apiToken:  apiToken,
		log:       log,
	}
}

type queueItem struct {
	DevEUI    string `json:"devEUI"`
	FPort     int    `json:"fPort"`
	Data      string `json:"data"`
	Confirmed bool   `json:"confirmed"`
}

type queueRequest struct {
	QueueItem queueItem `json:"queueItem"`
}

// Send validates the command, writes the pending audit row, delivers
// to the network server's per-device queue and records the outcome.
func (s *Service) Send(ctx context.Context, deviceID, hexData string, port int, commandName string, triggeredBy models.TriggeredBy, ruleID *string) (*Result, error) {
	if !hexPattern.MatchString(hexData) || len(hexData)%2 != 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidHex, hexData)
	}
	if port <= 0 {
		port = 1
	}

	dev, err := s.store.DeviceByID(ctx, deviceID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve device: %w", err)
	}
	if s.serverURL == "" {
		return nil, ErrNoNetworkServer
	}

	entry := &models.DownlinkLog{
		DeviceID:    dev.ID,
		CommandName: commandName,
		HexData:     hexData,
		Port:        port,
		Status:      models.DownlinkPending,
		TriggeredBy: triggeredBy,
		RuleID:      ruleID,
	}
	if err := s.store.InsertDownlinkLog(ctx, entry); err != nil {
		return nil, fmt.Errorf("create downlink log: %w", err)
	}

	deliverErr := s.deliver(ctx, dev.DevEUI, hexData, port)

	status := models.DownlinkSent
	errText := ""
	if deliverErr != nil {
		status = models.DownlinkFailed
		errText = deliverErr.Error()
		s.log.Warn("downlink delivery failed",
			zap.String("device", dev.DevEUI),
			zap.String("log_id", entry.ID),
			zap.Error(deliverErr))
	}
	if err := s.store.UpdateDownlinkStatus(ctx, entry.ID, status, errText); err != nil {
		s.log.Error("updating downlink log failed",
			zap.String("log_id", entry.ID), zap.Error(err))
	}

	return &Result{Success: deliverErr == nil, LogID: entry.ID}, deliverErr
}

// deliver converts hex → binary → base64 and queues the command with
// delivery confirmation requested.
func (s *Service) deliver(ctx context.Context, devEUI, hexData string, port int) error {
	raw, err := hex.DecodeString(hexData)
	if err != nil {
		// Odd-length strings pass the character check but not decoding.
		return fmt.Errorf("%w: %v", ErrInvalidHex, err)
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetAuthToken(s.apiToken).
		SetBody(queueRequest{QueueItem: queueItem{
			DevEUI:    devEUI,
			FPort:     port,
			Data:      base64.StdEncoding.EncodeToString(raw),
			Confirmed: true,
		}}).
		Post(fmt.Sprintf("%s/api/devices/%s/queue", s.serverURL, devEUI))
	if err != nil {
		return fmt.Errorf("network server request: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("network server returned HTTP %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
