// Package ingest persists decoded readings and feeds the push side of
// rule evaluation.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"agrisense/internal/db"
	"agrisense/internal/models"
)

// ErrDeviceNotFound aborts one batch; the pipeline itself stays alive.
var ErrDeviceNotFound = errors.New("device not found")

// Store is the persistence surface the pipeline needs.
type Store interface {
	DeviceBySerial(ctx context.Context, serial string) (*models.Device, error)
	DeviceModelByID(ctx context.Context, id string) (*models.DeviceModel, error)
	SaveReadingBatch(ctx context.Context, deviceID string, battery *float64, points []db.Point) error
}

// Decoder turns a raw binary uplink into a code→value map.
type Decoder interface {
	Decode(vendor, model string, data []byte, port int) map[string]float64
}

// Evaluator is the push entry point of the rule engine.
type Evaluator interface {
	EvaluateDevice(ctx context.Context, deviceID, farmID string) error
}

// Pipeline resolves devices, persists reading batches and triggers
// push evaluation.
type Pipeline struct {
	store     Store
	decoder   Decoder
	evaluator Evaluator
	log       *zap.Logger
}

// NewPipeline creates the ingestion pipeline.
func NewPipeline(store Store, decoder Decoder, evaluator Evaluator, log *zap.Logger) *Pipeline {
	return &Pipeline{store: store, decoder: decoder, evaluator: evaluator, log: log}
}

// Ingest persists one decoded batch for the device identified by
// serial. All readings of the batch commit atomically; a batch for an
// unknown device fails with ErrDeviceNotFound and writes nothing.
// Returns the number of readings persisted.
func (p *Pipeline) Ingest(ctx context.Context, serial string, readings map[string]float64) (int, error) {
	if len(readings) == 0 {
		return 0, nil
	}
	dev, model, err := p.resolve(ctx, serial)
	if err != nil {
		return 0, err
	}
	return p.persist(ctx, dev, model, readings)
}

// IngestRaw decodes a binary uplink with the device model's decoder
// family and persists the result like Ingest.
func (p *Pipeline) IngestRaw(ctx context.Context, serial string, data []byte, port int) (int, error) {
	dev, model, err := p.resolve(ctx, serial)
	if err != nil {
		return 0, err
	}

	vendor, name := "", ""
	if model != nil {
		vendor, name = model.Vendor, model.Name
	}
	readings := p.decoder.Decode(vendor, name, data, port)
	if len(readings) == 0 {
		p.log.Warn("uplink decoded to zero readings",
			zap.String("device", dev.DevEUI), zap.Int("bytes", len(data)))
		return 0, nil
	}
	return p.persist(ctx, dev, model, readings)
}

// resolve loads the device and, when assigned, its model. Model lookup
// failures degrade to heuristic channel naming and the generic decoder.
func (p *Pipeline) resolve(ctx context.Context, serial string) (*models.Device, *models.DeviceModel, error) {
	dev, err := p.store.DeviceBySerial(ctx, NormalizeSerial(serial))
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, serial)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("resolve device %s: %w", serial, err)
	}
	if dev.ModelID == nil {
		return dev, nil, nil
	}
	model, err := p.store.DeviceModelByID(ctx, *dev.ModelID)
	if err != nil {
		p.log.Warn("device model lookup failed",
			zap.String("device_id", dev.ID), zap.Error(err))
		return dev, nil, nil
	}
	return dev, model, nil
}

func (p *Pipeline) persist(ctx context.Context, dev *models.Device, model *models.DeviceModel, readings map[string]float64) (int, error) {
	var template map[string]models.ChannelTemplate
	if model != nil {
		template = parseChannelTemplate(model, p.log)
	}

	points := make([]db.Point, 0, len(readings))
	var battery *float64
	for code, value := range readings {
		meta := resolveChannelMeta(code, template)
		points = append(points, db.Point{
			Code:  code,
			Name:  meta.Name,
			Unit:  meta.Unit,
			Type:  meta.Type,
			Value: value,
		})
		if code == "battery" {
			v := value
			battery = &v
		}
	}

	if err := p.store.SaveReadingBatch(ctx, dev.ID, battery, points); err != nil {
		return 0, fmt.Errorf("persist batch for %s: %w", dev.DevEUI, err)
	}

	// Push evaluation runs after commit. Its failures are logged and
	// contained: a broken rule must not turn a successful ingest into
	// an ingest error.
	if err := p.evaluator.EvaluateDevice(ctx, dev.ID, dev.FarmID); err != nil {
		p.log.Error("push rule evaluation failed",
			zap.String("device_id", dev.ID), zap.Error(err))
	}

	return len(points), nil
}
