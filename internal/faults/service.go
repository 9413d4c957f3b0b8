package faults

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fleet-service/internal/events"
	"fleet-service/pkg/apperr"
	"fleet-service/pkg/kafka"
)

// VehicleDirectory is the slice of the registry the ledger needs.
type VehicleDirectory interface {
	VehicleExists(ctx context.Context, id string) (bool, error)
}

// Service contains fault-ledger business logic.
type Service struct {
	store    Store
	vehicles VehicleDirectory
	log      *zap.SugaredLogger
}

// NewService creates a fault ledger service.
func NewService(store Store, vehicles VehicleDirectory, log *zap.SugaredLogger) *Service {
	return &Service{store: store, vehicles: vehicles, log: log}
}

// Report records a new fault against a vehicle.
func (s *Service) Report(ctx context.Context, req ReportRequest) (*VehicleError, error) {
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return nil, apperr.Validationf("code required")
	}
	sev := strings.ToUpper(strings.TrimSpace(req.Severity))
	if !ValidSeverity(sev) {
		return nil, apperr.Validationf("unknown severity %q", req.Severity)
	}
	ok, err := s.vehicles.VehicleExists(ctx, req.VehicleID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NotFoundf("vehicle %s", req.VehicleID)
	}

	f := &VehicleError{
		ID:         uuid.NewString(),
		VehicleID:  req.VehicleID,
		Code:       code,
		Severity:   sev,
		ReportedAt: time.Now(),
	}
	if err := s.store.Create(ctx, f); err != nil {
		return nil, err
	}
	s.log.Infow("fault reported", "fault_id", f.ID, "vehicle_id", f.VehicleID, "code", f.Code, "severity", f.Severity)
	return f, nil
}

func (s *Service) Get(ctx context.Context, id string) (*VehicleError, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, vehicleID string, unresolvedOnly bool, limit, offset int) ([]VehicleError, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.List(ctx, vehicleID, unresolvedOnly, limit, offset)
}

// StartTelemetryConsumer ingests faults published by the telemetry pipeline
// on vehicle.fault.reported.
func (s *Service) StartTelemetryConsumer(ctx context.Context, k *kafka.Client) {
	k.Subscribe(ctx, kafka.TopicFaultReported, "fault-ledger", func(data []byte) error {
		var ev events.FaultReportedEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		_, err := s.Report(ctx, ReportRequest{
			VehicleID: ev.VehicleID,
			Code:      ev.Code,
			Severity:  ev.Severity,
		})
		if err != nil {
			// telemetry for unknown vehicles is dropped, not retried
			s.log.Warnf("drop fault event for vehicle %s: %v", ev.VehicleID, err)
		}
		return nil
	})
}
