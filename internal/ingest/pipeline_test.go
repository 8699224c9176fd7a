package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"agrisense/internal/db"
	"agrisense/internal/decoder"
	"agrisense/internal/models"
)

type savedBatch struct {
	deviceID string
	battery  *float64
	points   []db.Point
}

type fakeStore struct {
	devices map[string]*models.Device // keyed by normalized serial
	model   *models.DeviceModel
	batches []savedBatch
	saveErr error
}

func (f *fakeStore) DeviceBySerial(_ context.Context, serial string) (*models.Device, error) {
	if dev, ok := f.devices[serial]; ok {
		return dev, nil
	}
	return nil, db.ErrNotFound
}

func (f *fakeStore) DeviceModelByID(_ context.Context, id string) (*models.DeviceModel, error) {
	if f.model != nil && f.model.ID == id {
		return f.model, nil
	}
	return nil, db.ErrNotFound
}

func (f *fakeStore) SaveReadingBatch(_ context.Context, deviceID string, battery *float64, points []db.Point) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.batches = append(f.batches, savedBatch{deviceID: deviceID, battery: battery, points: points})
	return nil
}

type fakeEvaluator struct {
	calls []string
	err   error
}

func (f *fakeEvaluator) EvaluateDevice(_ context.Context, deviceID, farmID string) error {
	f.calls = append(f.calls, deviceID+"/"+farmID)
	return f.err
}

func newTestPipeline(store *fakeStore, eval *fakeEvaluator) *Pipeline {
	return NewPipeline(store, decoder.NewRegistry(zap.NewNop()), eval, zap.NewNop())
}

func TestNormalizeSerial(t *testing.T) {
	assert.Equal(t, "aabbcc01", NormalizeSerial("AA:BB:CC:01"))
	assert.Equal(t, "24e124136d154988", NormalizeSerial("24-E1-24-13-6D-15-49-88"))
	assert.Equal(t, "abc123", NormalizeSerial(" ABC 123 "))
}

func TestIngestKnownDevice(t *testing.T) {
	store := &fakeStore{devices: map[string]*models.Device{
		"a1": {ID: "dev-1", DevEUI: "A1", FarmID: "farm-1"},
	}}
	eval := &fakeEvaluator{}
	p := newTestPipeline(store, eval)

	n, err := p.Ingest(context.Background(), "A1", map[string]float64{"t_air": 22.1, "hum": 55})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, store.batches, 1)
	batch := store.batches[0]
	assert.Equal(t, "dev-1", batch.deviceID)
	assert.Nil(t, batch.battery)
	require.Len(t, batch.points, 2)

	byCode := map[string]db.Point{}
	for _, pt := range batch.points {
		byCode[pt.Code] = pt
	}
	assert.Equal(t, 22.1, byCode["t_air"].Value)
	assert.Equal(t, "°C", byCode["t_air"].Unit)
	assert.Equal(t, "%", byCode["hum"].Unit)

	assert.Equal(t, []string{"dev-1/farm-1"}, eval.calls)
}

func TestIngestUnknownDevice(t *testing.T) {
	store := &fakeStore{devices: map[string]*models.Device{}}
	eval := &fakeEvaluator{}
	p := newTestPipeline(store, eval)

	n, err := p.Ingest(context.Background(), "nope", map[string]float64{"t_air": 22.1})
	assert.ErrorIs(t, err, ErrDeviceNotFound)
	assert.Zero(t, n)
	assert.Empty(t, store.batches)
	assert.Empty(t, eval.calls)
}

func TestIngestNormalizesSerialBeforeLookup(t *testing.T) {
	store := &fakeStore{devices: map[string]*models.Device{
		"aabbcc01": {ID: "dev-1", FarmID: "farm-1"},
	}}
	p := newTestPipeline(store, &fakeEvaluator{})

	_, err := p.Ingest(context.Background(), "AA:BB:CC:01", map[string]float64{"t_air": 1})
	require.NoError(t, err)
	require.Len(t, store.batches, 1)
}

func TestIngestBatteryUpdatesDevice(t *testing.T) {
	store := &fakeStore{devices: map[string]*models.Device{
		"a1": {ID: "dev-1", FarmID: "farm-1"},
	}}
	p := newTestPipeline(store, &fakeEvaluator{})

	_, err := p.Ingest(context.Background(), "a1", map[string]float64{"battery": 87})
	require.NoError(t, err)
	require.Len(t, store.batches, 1)
	require.NotNil(t, store.batches[0].battery)
	assert.Equal(t, 87.0, *store.batches[0].battery)
}

func TestIngestUsesModelChannelTemplate(t *testing.T) {
	modelID := "model-1"
	tpl, _ := json.Marshal(map[string]models.ChannelTemplate{
		"t_air": {Name: "Air temperature", Unit: "K", Type: "temperature"},
	})
	store := &fakeStore{
		devices: map[string]*models.Device{
			"a1": {ID: "dev-1", FarmID: "farm-1", ModelID: &modelID},
		},
		model: &models.DeviceModel{ID: modelID, Name: "EM300-TH", Vendor: "Milesight", Channels: tpl},
	}
	p := newTestPipeline(store, &fakeEvaluator{})

	_, err := p.Ingest(context.Background(), "a1", map[string]float64{"t_air": 22.1, "hum": 55})
	require.NoError(t, err)

	byCode := map[string]db.Point{}
	for _, pt := range store.batches[0].points {
		byCode[pt.Code] = pt
	}
	// Template wins where present, heuristics fill the rest.
	assert.Equal(t, "Air temperature", byCode["t_air"].Name)
	assert.Equal(t, "K", byCode["t_air"].Unit)
	assert.Equal(t, "Humidity", byCode["hum"].Name)
}

func TestIngestEvaluationFailureIsContained(t *testing.T) {
	store := &fakeStore{devices: map[string]*models.Device{
		"a1": {ID: "dev-1", FarmID: "farm-1"},
	}}
	eval := &fakeEvaluator{err: errors.New("rule store down")}
	p := newTestPipeline(store, eval)

	n, err := p.Ingest(context.Background(), "a1", map[string]float64{"t_air": 22.1})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestIngestPersistenceFailure(t *testing.T) {
	store := &fakeStore{
		devices: map[string]*models.Device{"a1": {ID: "dev-1", FarmID: "farm-1"}},
		saveErr: errors.New("connection refused"),
	}
	eval := &fakeEvaluator{}
	p := newTestPipeline(store, eval)

	_, err := p.Ingest(context.Background(), "a1", map[string]float64{"t_air": 22.1})
	assert.Error(t, err)
	assert.Empty(t, eval.calls, "evaluation must not run on a failed batch")
}

func TestIngestRawDecodesWithModelFamily(t *testing.T) {
	modelID := "model-1"
	store := &fakeStore{
		devices: map[string]*models.Device{
			"24e124136d154988": {ID: "dev-1", FarmID: "farm-1", ModelID: &modelID},
		},
		model: &models.DeviceModel{ID: modelID, Name: "EM300-TH", Vendor: "Milesight"},
	}
	p := newTestPipeline(store, &fakeEvaluator{})

	// 0x03 0x67 temp=23.5, 0x04 0x68 hum=55%
	payload := []byte{0x03, 0x67, 0xEB, 0x00, 0x04, 0x68, 0x6E}
	n, err := p.IngestRaw(context.Background(), "24-E1-24-13-6D-15-49-88", payload, 85)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	byCode := map[string]db.Point{}
	for _, pt := range store.batches[0].points {
		byCode[pt.Code] = pt
	}
	assert.Equal(t, 23.5, byCode["temperature"].Value)
	assert.Equal(t, 55.0, byCode["humidity"].Value)
}

func TestIngestRawEmptyDecodeWritesNothing(t *testing.T) {
	store := &fakeStore{devices: map[string]*models.Device{
		"a1": {ID: "dev-1", FarmID: "farm-1"},
	}}
	eval := &fakeEvaluator{}
	p := newTestPipeline(store, eval)

	n, err := p.IngestRaw(context.Background(), "a1", nil, 85)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, store.batches)
	assert.Empty(t, eval.calls)
}

func TestInferChannelMeta(t *testing.T) {
	cases := map[string]string{
		"t_air":      "°C",
		"temp_soil":  "°C",
		"hum":        "%",
		"co2":        "ppm",
		"pressure":   "hPa",
		"battery":    "%",
		"soil_vwc":   "%",
		"wind_speed": "m/s",
		"wind_dir":   "°",
		"rainfall":   "mm",
		"lux":        "lux",
		"distance":   "mm",
		"whatever":   "",
	}
	for code, unit := range cases {
		assert.Equal(t, unit, inferChannelMeta(code).Unit, code)
	}
}
