package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ronaldofilardo/Qwork-sub006/internal/domain"
	"github.com/ronaldofilardo/Qwork-sub006/internal/repository"
	"go.uber.org/zap"
)

// EmitterPresence reports how many emitter processes recently heartbeated.
type EmitterPresence interface {
	AvailableCount(ctx context.Context) (int, error)
}

// Alert flags a condition in the emission pipeline that needs attention.
type Alert struct {
	Severity string `json:"severity"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	BatchID  string `json:"batchId,omitempty"`
}

const (
	AlertSeverityCritical = "CRITICAL"
	AlertSeverityWarning  = "WARNING"
)

// PendingEmission is a concluded batch still waiting for its report.
type PendingEmission struct {
	BatchID     string     `json:"batchId"`
	ClientRef   string     `json:"clientRef"`
	ConcludedAt *time.Time `json:"concludedAt,omitempty"`
}

// PendingDelivery is an emitted report not yet handed to the object store.
type PendingDelivery struct {
	BatchID   string     `json:"batchId"`
	EmittedAt *time.Time `json:"emittedAt,omitempty"`
}

// MonitorSnapshot is the full observability view over the rolling window.
type MonitorSnapshot struct {
	WindowStart       time.Time         `json:"windowStart"`
	GeneratedAt       time.Time         `json:"generatedAt"`
	EmittedCount      int               `json:"emittedCount"`
	DeliveredCount    int               `json:"deliveredCount"`
	AutoEmitSkips     int               `json:"autoEmitSkips"`
	QueueDepth        int               `json:"queueDepth"`
	EmittersAvailable int               `json:"emittersAvailable"`
	PendingEmissions  []PendingEmission `json:"pendingEmissions"`
	PendingDeliveries []PendingDelivery `json:"pendingDeliveries"`
	EmissionLatency   LatencyStats      `json:"emissionLatency"`
	DeliveryLatency   LatencyStats      `json:"deliveryLatency"`
	Alerts            []Alert           `json:"alerts"`
}

// Monitor assembles pipeline health snapshots from storage and the presence
// registry. It reads only; nothing in a snapshot mutates state.
type Monitor struct {
	batches    repository.BatchRepository
	reports    repository.ReportRepository
	queue      repository.QueueRepository
	audits     repository.AuditRepository
	presence   EmitterPresence
	logger     *zap.Logger
	window     time.Duration
	stuckAfter time.Duration
	now        func() time.Time
}

func NewMonitor(
	batches repository.BatchRepository,
	reports repository.ReportRepository,
	queue repository.QueueRepository,
	audits repository.AuditRepository,
	presence EmitterPresence,
	window time.Duration,
	stuckAfter time.Duration,
	logger *zap.Logger,
) (*Monitor, error) {
	if batches == nil || reports == nil || queue == nil || audits == nil {
		return nil, fmt.Errorf("batch, report, queue and audit repositories are required")
	}
	if window <= 0 {
		window = 24 * time.Hour
	}
	if stuckAfter <= 0 {
		stuckAfter = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Monitor{
		batches:    batches,
		reports:    reports,
		queue:      queue,
		audits:     audits,
		presence:   presence,
		logger:     logger,
		window:     window,
		stuckAfter: stuckAfter,
		now:        time.Now,
	}, nil
}

// Snapshot builds the current health view over the monitor's window.
func (m *Monitor) Snapshot(ctx context.Context) (*MonitorSnapshot, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	now := m.now().UTC()
	since := now.Add(-m.window)
	snapshot := &MonitorSnapshot{
		WindowStart:       since,
		GeneratedAt:       now,
		PendingEmissions:  []PendingEmission{},
		PendingDeliveries: []PendingDelivery{},
		Alerts:            []Alert{},
	}

	emitted, err := m.reports.CountEmittedSince(ctx, since)
	if err != nil {
		return nil, err
	}
	snapshot.EmittedCount = emitted

	delivered, err := m.reports.CountDeliveredSince(ctx, since)
	if err != nil {
		return nil, err
	}
	snapshot.DeliveredCount = delivered

	skips, err := m.audits.CountActionSince(ctx, domain.AuditActionAutoEmitSkipped, since)
	if err != nil {
		return nil, err
	}
	snapshot.AutoEmitSkips = skips

	depth, err := m.queue.CountPending(ctx)
	if err != nil {
		return nil, err
	}
	snapshot.QueueDepth = depth

	pendingBatches, err := m.batches.ListPendingEmission(ctx)
	if err != nil {
		return nil, err
	}
	for _, b := range pendingBatches {
		snapshot.PendingEmissions = append(snapshot.PendingEmissions, PendingEmission{
			BatchID:     b.ID,
			ClientRef:   b.ClientRef,
			ConcludedAt: b.ConcludedAt,
		})
	}

	pendingReports, err := m.reports.ListPendingDelivery(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range pendingReports {
		snapshot.PendingDeliveries = append(snapshot.PendingDeliveries, PendingDelivery{
			BatchID:   r.ID,
			EmittedAt: r.EmittedAt,
		})
	}

	emissionLatencies, err := m.reports.EmissionLatenciesSince(ctx, since)
	if err != nil {
		return nil, err
	}
	snapshot.EmissionLatency = ComputeLatencyStats(emissionLatencies)

	deliveryLatencies, err := m.reports.DeliveryLatenciesSince(ctx, since)
	if err != nil {
		return nil, err
	}
	snapshot.DeliveryLatency = ComputeLatencyStats(deliveryLatencies)

	snapshot.EmittersAvailable = m.emittersAvailable(ctx)
	snapshot.Alerts = m.collectAlerts(ctx, snapshot, since, now)

	return snapshot, nil
}

func (m *Monitor) emittersAvailable(ctx context.Context) int {
	if m.presence == nil {
		return 0
	}
	count, err := m.presence.AvailableCount(ctx)
	if err != nil {
		m.logger.Warn("presence lookup failed", zap.Error(err))
		return 0
	}
	return count
}

func (m *Monitor) collectAlerts(ctx context.Context, snapshot *MonitorSnapshot, since time.Time, now time.Time) []Alert {
	alerts := []Alert{}

	stuckBefore := now.Add(-m.stuckAfter)
	for _, pending := range snapshot.PendingEmissions {
		if pending.ConcludedAt != nil && pending.ConcludedAt.Before(stuckBefore) {
			alerts = append(alerts, Alert{
				Severity: AlertSeverityCritical,
				Code:     "emission_stuck",
				Message: fmt.Sprintf("batch %s concluded %s ago without emission",
					pending.BatchID, now.Sub(*pending.ConcludedAt).Round(time.Second)),
				BatchID: pending.BatchID,
			})
		}
	}
	for _, pending := range snapshot.PendingDeliveries {
		if pending.EmittedAt != nil && pending.EmittedAt.Before(stuckBefore) {
			alerts = append(alerts, Alert{
				Severity: AlertSeverityCritical,
				Code:     "delivery_stuck",
				Message: fmt.Sprintf("report %s emitted %s ago without delivery",
					pending.BatchID, now.Sub(*pending.EmittedAt).Round(time.Second)),
				BatchID: pending.BatchID,
			})
		}
	}

	failed, err := m.queue.ListFailedSince(ctx, since)
	if err != nil {
		m.logger.Warn("failed queue item lookup failed", zap.Error(err))
	} else {
		for _, item := range failed {
			message := fmt.Sprintf("emission for batch %s failed after %d attempts", item.BatchID, item.Attempts)
			if item.LastError != nil {
				message = fmt.Sprintf("%s: %s", message, *item.LastError)
			}
			alerts = append(alerts, Alert{
				Severity: AlertSeverityCritical,
				Code:     "emission_failed",
				Message:  message,
				BatchID:  item.BatchID,
			})
		}
	}

	if snapshot.EmittersAvailable == 0 {
		alerts = append(alerts, Alert{
			Severity: AlertSeverityWarning,
			Code:     "no_emitters_available",
			Message:  "no emitter heartbeats within the presence window",
		})
	}

	return alerts
}
