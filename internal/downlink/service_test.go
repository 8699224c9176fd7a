package downlink

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"agrisense/internal/db"
	"agrisense/internal/models"
)

type fakeStore struct {
	devices map[string]*models.Device
	logs    []models.DownlinkLog
	updates []struct {
		id     string
		status models.DownlinkStatus
		err    string
	}
}

func (f *fakeStore) DeviceByID(_ context.Context, id string) (*models.Device, error) {
	if dev, ok := f.devices[id]; ok {
		return dev, nil
	}
	return nil, db.ErrNotFound
}

func (f *fakeStore) InsertDownlinkLog(_ context.Context, l *models.DownlinkLog) error {
	if l.ID == "" {
		l.ID = "log-1"
	}
	f.logs = append(f.logs, *l)
	return nil
}

func (f *fakeStore) UpdateDownlinkStatus(_ context.Context, id string, status models.DownlinkStatus, errText string) error {
	f.updates = append(f.updates, struct {
		id     string
		status models.DownlinkStatus
		err    string
	}{id, status, errText})
	return nil
}

func knownDevice() map[string]*models.Device {
	return map[string]*models.Device{
		"dev-1": {ID: "dev-1", DevEUI: "24e124136d154988", FarmID: "farm-1"},
	}
}

func TestSendRejectsInvalidHex(t *testing.T) {
	store := &fakeStore{devices: knownDevice()}
	svc := NewService(store, "http://ns.local", "tok", time.Second, zap.NewNop())

	for _, bad := range []string{"xyz", "0G", "", "ABC"} {
		_, err := svc.Send(context.Background(), "dev-1", bad, 1, "valve", models.TriggeredByManual, nil)
		assert.ErrorIs(t, err, ErrInvalidHex, "hexData=%q", bad)
	}
	assert.Empty(t, store.logs, "invalid hex must not write state")
}

func TestSendUnknownDevice(t *testing.T) {
	store := &fakeStore{devices: map[string]*models.Device{}}
	svc := NewService(store, "http://ns.local", "tok", time.Second, zap.NewNop())

	_, err := svc.Send(context.Background(), "ghost", "0102", 1, "", models.TriggeredByManual, nil)
	assert.ErrorIs(t, err, ErrDeviceNotFound)
	assert.Empty(t, store.logs)
}

func TestSendNoNetworkServer(t *testing.T) {
	store := &fakeStore{devices: knownDevice()}
	svc := NewService(store, "", "", time.Second, zap.NewNop())

	_, err := svc.Send(context.Background(), "dev-1", "0102", 1, "", models.TriggeredByManual, nil)
	assert.ErrorIs(t, err, ErrNoNetworkServer)
	assert.Empty(t, store.logs)
}

func TestSendSuccessLifecycle(t *testing.T) {
	var gotAuth string
	var gotBody queueRequest
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	store := &fakeStore{devices: knownDevice()}
	svc := NewService(store, srv.URL, "ns-token", time.Second, zap.NewNop())

	ruleID := "rule-9"
	res, err := svc.Send(context.Background(), "dev-1", "07FF10", 5, "open valve", models.TriggeredByRule, &ruleID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "log-1", res.LogID)

	// Pending row written before delivery, then marked sent.
	require.Len(t, store.logs, 1)
	assert.Equal(t, models.DownlinkPending, store.logs[0].Status)
	assert.Equal(t, "07FF10", store.logs[0].HexData)
	assert.Equal(t, models.TriggeredByRule, store.logs[0].TriggeredBy)
	require.NotNil(t, store.logs[0].RuleID)
	assert.Equal(t, "rule-9", *store.logs[0].RuleID)

	require.Len(t, store.updates, 1)
	assert.Equal(t, models.DownlinkSent, store.updates[0].status)
	assert.Empty(t, store.updates[0].err)

	assert.Equal(t, "Bearer ns-token", gotAuth)
	assert.Equal(t, "/api/devices/24e124136d154988/queue", gotPath)
	assert.Equal(t, "24e124136d154988", gotBody.QueueItem.DevEUI)
	assert.Equal(t, 5, gotBody.QueueItem.FPort)
	assert.Equal(t, "B/8Q", gotBody.QueueItem.Data) // base64 of 07FF10
	assert.True(t, gotBody.QueueItem.Confirmed)
}

func TestSendServerErrorMarksFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "queue full", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	store := &fakeStore{devices: knownDevice()}
	svc := NewService(store, srv.URL, "tok", time.Second, zap.NewNop())

	res, err := svc.Send(context.Background(), "dev-1", "0102", 0, "", models.TriggeredByManual, nil)
	assert.Error(t, err)
	require.NotNil(t, res)
	assert.False(t, res.Success)

	require.Len(t, store.updates, 1)
	assert.Equal(t, models.DownlinkFailed, store.updates[0].status)
	assert.Contains(t, store.updates[0].err, "503")
}

func TestSendDefaultsPortToOne(t *testing.T) {
	var gotPort int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body queueRequest
		json.NewDecoder(r.Body).Decode(&body)
		gotPort = body.QueueItem.FPort
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	store := &fakeStore{devices: knownDevice()}
	svc := NewService(store, srv.URL, "tok", time.Second, zap.NewNop())

	_, err := svc.Send(context.Background(), "dev-1", "01", 0, "", models.TriggeredByManual, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, gotPort)
}
