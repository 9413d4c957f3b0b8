package jobs

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fleet-service/internal/events"
	"fleet-service/pkg/apperr"
	"fleet-service/pkg/kafka"
)

// Service carries the job lifecycle business logic: request validation,
// entity construction, and event publication. All state rules live in the
// store layer so they hold under concurrent callers.
type Service struct {
	store Store
	kafka *kafka.Client
	log   *zap.SugaredLogger
}

// NewService creates a job service. kafka may be nil (tests, memory mode).
func NewService(store Store, k *kafka.Client, log *zap.SugaredLogger) *Service {
	return &Service{store: store, kafka: k, log: log}
}

func (s *Service) Create(ctx context.Context, req CreateJobRequest) (*ServiceJob, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, apperr.Validationf("title required")
	}
	if strings.TrimSpace(req.Description) == "" {
		return nil, apperr.Validationf("description required")
	}
	if strings.TrimSpace(req.Instructions) == "" {
		return nil, apperr.Validationf("instructions required")
	}
	if strings.TrimSpace(req.VehicleID) == "" {
		return nil, apperr.Validationf("vehicle_id required")
	}
	priority := strings.ToUpper(strings.TrimSpace(req.Priority))
	if priority == "" {
		priority = PriorityMedium
	}
	if !ValidPriority(priority) {
		return nil, apperr.Validationf("unknown priority %q", req.Priority)
	}
	if req.EstimatedCost < 0 {
		return nil, apperr.Validationf("estimated cost must be >= 0")
	}
	if req.ScheduledDate.IsZero() {
		return nil, apperr.Validationf("scheduled_date required")
	}
	if len(req.MechanicIDs) == 0 {
		return nil, apperr.Validationf("at least one mechanic required")
	}
	seen := map[string]bool{}
	for _, mid := range req.MechanicIDs {
		if strings.TrimSpace(mid) == "" {
			return nil, apperr.Validationf("mechanic id must not be empty")
		}
		if seen[mid] {
			return nil, apperr.Validationf("duplicate mechanic %s", mid)
		}
		seen[mid] = true
	}

	now := time.Now()
	j := &ServiceJob{
		ID:            uuid.NewString(),
		Title:         title,
		Description:   req.Description,
		Instructions:  req.Instructions,
		Status:        StatusPending,
		Priority:      priority,
		VehicleID:     req.VehicleID,
		FaultID:       req.FaultID,
		ScheduledDate: req.ScheduledDate,
		EstimatedCost: req.EstimatedCost,
		CreatedAt:     now,
		UpdatedAt:     now,
		Mechanics:     []MechanicAssignment{},
		Parts:         []RequiredPart{},
	}
	for _, mid := range req.MechanicIDs {
		j.Mechanics = append(j.Mechanics, MechanicAssignment{
			ID:         uuid.NewString(),
			JobID:      j.ID,
			MechanicID: mid,
			AssignedAt: now,
		})
	}
	for _, in := range req.RequiredParts {
		p, err := newPart(j.ID, in)
		if err != nil {
			return nil, err
		}
		j.Parts = append(j.Parts, *p)
	}

	if err := s.store.CreateJob(ctx, j); err != nil {
		return nil, err
	}
	s.log.Infow("job created", "job_id", j.ID, "job_number", j.JobNumber, "vehicle_id", j.VehicleID)
	s.publish(kafka.TopicJobCreated, j.ID, events.JobCreatedEvent{
		JobID:     j.ID,
		JobNumber: j.JobNumber,
		VehicleID: j.VehicleID,
		Priority:  j.Priority,
		FaultID:   deref(j.FaultID),
		Estimated: j.EstimatedCost,
		CreatedAt: j.CreatedAt.Format(time.RFC3339),
	})
	return j, nil
}

func (s *Service) Get(ctx context.Context, id string) (*ServiceJob, error) {
	return s.store.GetJob(ctx, id)
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]ServiceJob, error) {
	if f.Status != "" {
		f.Status = strings.ToUpper(f.Status)
		switch f.Status {
		case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled:
		default:
			return nil, apperr.Validationf("unknown status %q", f.Status)
		}
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.store.ListJobs(ctx, f)
}

func (s *Service) Accept(ctx context.Context, jobID, mechanicID, notes string) (*ServiceJob, error) {
	if strings.TrimSpace(mechanicID) == "" {
		return nil, apperr.Validationf("mechanic_id required")
	}
	j, err := s.store.AcceptAssignment(ctx, jobID, mechanicID, notes, time.Now())
	if err != nil {
		return nil, err
	}
	s.log.Infow("assignment accepted", "job_id", jobID, "mechanic_id", mechanicID)
	return j, nil
}

func (s *Service) Decline(ctx context.Context, jobID, mechanicID string) (*ServiceJob, error) {
	if strings.TrimSpace(mechanicID) == "" {
		return nil, apperr.Validationf("mechanic_id required")
	}
	j, err := s.store.DeclineAssignment(ctx, jobID, mechanicID, time.Now())
	if err != nil {
		return nil, err
	}
	s.log.Infow("assignment declined", "job_id", jobID, "mechanic_id", mechanicID)
	return j, nil
}

func (s *Service) AssignMechanics(ctx context.Context, jobID string, mechanicIDs []string) (*ServiceJob, error) {
	if len(mechanicIDs) == 0 {
		return nil, apperr.Validationf("at least one mechanic required")
	}
	seen := map[string]bool{}
	for _, mid := range mechanicIDs {
		if strings.TrimSpace(mid) == "" {
			return nil, apperr.Validationf("mechanic id must not be empty")
		}
		if seen[mid] {
			return nil, apperr.Validationf("duplicate mechanic %s", mid)
		}
		seen[mid] = true
	}
	j, err := s.store.AddAssignments(ctx, jobID, mechanicIDs, time.Now())
	if err != nil {
		return nil, err
	}
	s.log.Infow("mechanics assigned", "job_id", jobID, "count", len(mechanicIDs))
	return j, nil
}

func (s *Service) Start(ctx context.Context, jobID string) (*ServiceJob, error) {
	j, err := s.store.StartJob(ctx, jobID, time.Now())
	if err != nil {
		return nil, err
	}
	s.log.Infow("job started", "job_id", jobID)
	s.publishStatusChange(j, StatusPending)
	return j, nil
}

func (s *Service) Complete(ctx context.Context, jobID string, req CompleteJobRequest) (*ServiceJob, error) {
	j, err := s.store.CompleteJob(ctx, jobID, req.CompletionNotes, req.ActualCost, time.Now())
	if err != nil {
		return nil, err
	}
	s.log.Infow("job completed", "job_id", jobID, "actual_cost", *j.ActualCost)
	s.publishStatusChange(j, StatusInProgress)
	s.publish(kafka.TopicJobCompleted, j.ID, events.JobCompletedEvent{
		JobID:           j.ID,
		VehicleID:       j.VehicleID,
		ActualCost:      *j.ActualCost,
		ResolvedFaultID: deref(j.FaultID),
		CompletedAt:     j.CompletedAt.Format(time.RFC3339),
	})
	return j, nil
}

func (s *Service) Cancel(ctx context.Context, jobID string) (*ServiceJob, error) {
	j, err := s.store.CancelJob(ctx, jobID, time.Now())
	if err != nil {
		return nil, err
	}
	s.log.Infow("job cancelled", "job_id", jobID)
	// The pre-cancel status is not reported: cancel applies from either
	// live state and the job row now only holds the terminal one.
	s.publishStatusChange(j, "")
	return j, nil
}

func (s *Service) AddParts(ctx context.Context, jobID string, parts []PartInput) (*ServiceJob, error) {
	if len(parts) == 0 {
		return nil, apperr.Validationf("at least one part required")
	}
	j, err := s.store.AddParts(ctx, jobID, parts, time.Now())
	if err != nil {
		return nil, err
	}
	s.log.Infow("parts added", "job_id", jobID, "count", len(parts))
	return j, nil
}

func (s *Service) MarkPartOrdered(ctx context.Context, partID string) (*RequiredPart, error) {
	return s.store.SetPartOrdered(ctx, partID)
}

func (s *Service) MarkPartReceived(ctx context.Context, partID string) (*RequiredPart, error) {
	return s.store.SetPartReceived(ctx, partID)
}

func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	return s.store.Summarize(ctx)
}

func (s *Service) publishStatusChange(j *ServiceJob, from string) {
	s.publish(kafka.TopicJobStatusChanged, j.ID, events.JobStatusChangedEvent{
		JobID:     j.ID,
		VehicleID: j.VehicleID,
		From:      from,
		To:        j.Status,
		ChangedAt: j.UpdatedAt.Format(time.RFC3339),
	})
}

func (s *Service) publish(topic, key string, ev any) {
	if s.kafka == nil {
		return
	}
	go func() {
		if err := s.kafka.Publish(context.Background(), topic, key, ev); err != nil {
			s.log.Errorf("publish %s: %v", topic, err)
		}
	}()
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
