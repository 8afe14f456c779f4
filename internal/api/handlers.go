package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"smtrack.dev/telemetry-hub/internal/ingest"
	"smtrack.dev/telemetry-hub/internal/query"
	"smtrack.dev/telemetry-hub/internal/store"
	"smtrack.dev/telemetry-hub/pkg/metrics"
)

// maxBodyBytes caps request bodies; batch uploads from gateways stay well
// under this.
const maxBodyBytes = 1 << 20

// Handlers exposes the HTTP surface of the pipeline: report ingest on the
// write side, scoped queries on the read side.
type Handlers struct {
	logger       *slog.Logger
	query        *query.Service
	reports      *ingest.ReportProducer
	notifier     *ingest.NotificationProducer
	connectivity *ingest.ConnectivityPublisher
	metrics      *metrics.APIMetrics // Optional metrics
}

// NewHandlers creates the HTTP handler set.
func NewHandlers(logger *slog.Logger, q *query.Service, reports *ingest.ReportProducer,
	notifier *ingest.NotificationProducer, connectivity *ingest.ConnectivityPublisher) *Handlers {
	return &Handlers{
		logger:       logger,
		query:        q,
		reports:      reports,
		notifier:     notifier,
		connectivity: connectivity,
	}
}

// SetMetrics sets the metrics collector for these handlers.
func (h *Handlers) SetMetrics(m *metrics.APIMetrics) {
	h.metrics = m
}

// Routes builds the request mux. Method and path parameters use the standard
// library pattern syntax.
func (h *Handlers) Routes(metricsHandler http.Handler) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /log", h.instrument("/log", h.postLog))
	mux.HandleFunc("GET /log/{serial}", h.instrument("/log/{serial}", h.getDeviceLogs))
	mux.HandleFunc("PUT /log/{id}", h.instrument("/log/{id}", h.putLog))
	mux.HandleFunc("DELETE /log/{id}", h.instrument("/log/{id}", h.deleteLog))

	mux.HandleFunc("POST /notification", h.instrument("/notification", h.postNotification))
	mux.HandleFunc("GET /notification", h.instrument("/notification", h.listNotifications))
	mux.HandleFunc("GET /notification/dashboard/count", h.instrument("/notification/dashboard/count", h.dashboardCounts))
	mux.HandleFunc("GET /notification/history", h.instrument("/notification/history", h.notificationHistory))
	mux.HandleFunc("GET /notification/{serial}", h.instrument("/notification/{serial}", h.getDeviceNotifications))
	mux.HandleFunc("PUT /notification/{id}", h.instrument("/notification/{id}", h.putNotification))
	mux.HandleFunc("DELETE /notification/{id}", h.instrument("/notification/{id}", h.deleteNotification))

	mux.HandleFunc("POST /device/online", h.instrument("/device/online", h.deviceOnline))
	mux.HandleFunc("GET /device/history/{serial}", h.instrument("/device/history/{serial}", h.deviceHistory))
	mux.HandleFunc("PUT /device/{serial}", h.instrument("/device/{serial}", h.putDevice))
	mux.HandleFunc("DELETE /device/{serial}", h.instrument("/device/{serial}", h.deleteDevice))

	mux.HandleFunc("GET /graph", h.instrument("/graph", h.temperatureGraph))

	mux.HandleFunc("GET /mobile/notification", h.instrument("/mobile/notification", h.mobileNotifications))
	mux.HandleFunc("GET /mobile/ward/{ward}", h.instrument("/mobile/ward/{ward}", h.wardDevices))

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}

	return mux
}

// instrument wraps a handler with request counting and latency tracking,
// labeled by route pattern rather than raw path to keep cardinality bounded.
func (h *Handlers) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	if h.metrics == nil {
		return next
	}

	return func(w http.ResponseWriter, r *http.Request) {
		h.metrics.RequestsInFlight.Inc()
		defer h.metrics.RequestsInFlight.Dec()

		timer := prometheus.NewTimer(h.metrics.RequestDuration.WithLabelValues(route))
		defer timer.ObserveDuration()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)

		h.metrics.RequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// postLog accepts a single report or a batch of reports from a device and
// fans them out to the pipeline queues. The reporting device is identified by
// its gateway-verified serial header.
func (h *Handlers) postLog(w http.ResponseWriter, r *http.Request) {
	serial := deviceSerial(r)
	if serial == "" {
		writeError(w, h.logger, r, fmt.Errorf("%w: missing device serial", errBadPayload))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, h.logger, r, fmt.Errorf("%w: %v", errBadPayload, err))
		return
	}

	if bytes.HasPrefix(bytes.TrimLeft(body, " \t\r\n"), []byte("[")) {
		var reports []*store.DeviceLog
		if err := json.Unmarshal(body, &reports); err != nil {
			writeError(w, h.logger, r, fmt.Errorf("%w: %v", errBadPayload, err))
			return
		}

		accepted, err := h.reports.PublishBatch(r.Context(), serial, reports)
		if err != nil {
			writeError(w, h.logger, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]int{"accepted": accepted})
		return
	}

	var report store.DeviceLog
	if err := json.Unmarshal(body, &report); err != nil {
		writeError(w, h.logger, r, fmt.Errorf("%w: %v", errBadPayload, err))
		return
	}

	if err := h.reports.Publish(r.Context(), serial, &report); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, &report)
}

func (h *Handlers) getDeviceLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := h.query.DeviceLogs(r.Context(), r.PathValue("serial"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (h *Handlers) putLog(w http.ResponseWriter, r *http.Request) {
	updates, err := decodeUpdates(r, logUpdateColumns)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	if err := h.query.UpdateDeviceLog(r.Context(), r.PathValue("id"), updates); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handlers) deleteLog(w http.ResponseWriter, r *http.Request) {
	if err := h.query.DeleteDeviceLog(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// postNotification accepts a raw event code from a device, classifies it and
// publishes it to the notification queue. The classified notification is
// returned synchronously.
func (h *Handlers) postNotification(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Serial  string `json:"serial"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&payload); err != nil {
		writeError(w, h.logger, r, fmt.Errorf("%w: %v", errBadPayload, err))
		return
	}

	if payload.Serial == "" {
		payload.Serial = deviceSerial(r)
	}

	notification, err := h.notifier.Publish(r.Context(), payload.Serial, payload.Message)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, notification)
}

func (h *Handlers) listNotifications(w http.ResponseWriter, r *http.Request) {
	page := intParam(r, "page", 1)
	perPage := intParam(r, "perpage", 10)

	rows, err := h.query.ListNotifications(r.Context(), claimsFrom(r), r.URL.Query().Get("filter"), page, perPage)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *Handlers) dashboardCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.query.DashboardCounts(r.Context(), claimsFrom(r))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (h *Handlers) notificationHistory(w http.ResponseWriter, r *http.Request) {
	rows, err := h.query.NotificationHistory(r.Context(), claimsFrom(r), r.URL.Query().Get("day"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *Handlers) getDeviceNotifications(w http.ResponseWriter, r *http.Request) {
	rows, err := h.query.DeviceNotifications(r.Context(), r.PathValue("serial"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *Handlers) putNotification(w http.ResponseWriter, r *http.Request) {
	updates, err := decodeUpdates(r, notificationUpdateColumns)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	if err := h.query.UpdateNotification(r.Context(), r.PathValue("id"), updates); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handlers) deleteNotification(w http.ResponseWriter, r *http.Request) {
	if err := h.query.DeleteNotification(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// deviceOnline is the broker connectivity webhook. Connect and disconnect
// events for recognized device serials are republished to the device queue;
// everything else is acknowledged and dropped.
func (h *Handlers) deviceOnline(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ClientID string `json:"clientid"`
		Event    string `json:"event"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&payload); err != nil {
		writeError(w, h.logger, r, fmt.Errorf("%w: %v", errBadPayload, err))
		return
	}

	if err := h.connectivity.Publish(r.Context(), payload.ClientID, payload.Event); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) deviceHistory(w http.ResponseWriter, r *http.Request) {
	rows, err := h.query.DeviceHistory(r.Context(), r.PathValue("serial"), r.URL.Query().Get("day"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *Handlers) putDevice(w http.ResponseWriter, r *http.Request) {
	updates, err := decodeUpdates(r, deviceUpdateColumns)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	if err := h.query.UpdateDevice(r.Context(), r.PathValue("serial"), updates); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handlers) deleteDevice(w http.ResponseWriter, r *http.Request) {
	if err := h.query.DeleteDevice(r.Context(), r.PathValue("serial")); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handlers) temperatureGraph(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var start, stop time.Time
	if v := q.Get("start"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			start = t
		}
	}
	if v := q.Get("stop"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			stop = t
		}
	}

	rows, err := h.query.TemperatureGraph(r.Context(), q.Get("sn"), q.Get("span"), start, stop)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *Handlers) mobileNotifications(w http.ResponseWriter, r *http.Request) {
	rows, err := h.query.MobileNotifications(r.Context(), claimsFrom(r))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *Handlers) wardDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.query.WardDevices(r.Context(), claimsFrom(r), r.PathValue("ward"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

// Updatable fields per route, mapping the public JSON name to the column the
// store writes. Keys outside the map are dropped so a caller cannot write
// columns the route does not own.
var (
	deviceUpdateColumns = map[string]string{
		"name":       "name",
		"staticName": "static_name",
		"ward":       "ward",
		"hospital":   "hospital",
		"status":     "status",
		"seq":        "seq",
		"firmware":   "firmware",
		"remark":     "remark",
	}
	logUpdateColumns = map[string]string{
		"temp":            "temp",
		"tempDisplay":     "temp_display",
		"humidity":        "humidity",
		"humidityDisplay": "humidity_display",
		"probe":           "probe",
		"battery":         "battery",
	}
	notificationUpdateColumns = map[string]string{
		"status": "status",
		"detail": "detail",
	}
)

// decodeUpdates decodes a JSON object and keeps only the allowed fields,
// renamed to their column names.
func decodeUpdates(r *http.Request, allowed map[string]string) (map[string]any, error) {
	var payload map[string]any
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadPayload, err)
	}

	updates := make(map[string]any)
	for key, column := range allowed {
		if v, ok := payload[key]; ok {
			updates[column] = v
		}
	}

	if len(updates) == 0 {
		return nil, fmt.Errorf("%w: no updatable fields", errBadPayload)
	}
	return updates, nil
}

// intParam parses a positive integer query parameter, falling back to def.
func intParam(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	return n
}
