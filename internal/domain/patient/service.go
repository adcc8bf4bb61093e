package patient

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/patient-service/internal/platform/cache"
	"github.com/ehr/patient-service/internal/platform/events"
	"github.com/ehr/patient-service/pkg/pagination"
)

// maxMRNAttempts bounds regeneration when a generated MRN collides.
const maxMRNAttempts = 5

type Service struct {
	repo      Repository
	cache     cache.Cache[uuid.UUID, *Patient]
	fence     cache.Fence[uuid.UUID]
	publisher events.Publisher
	mrn       *MRNGenerator
	logger    zerolog.Logger
	now       func() time.Time
}

type Option func(*Service)

func WithCache(c cache.Cache[uuid.UUID, *Patient]) Option {
	return func(s *Service) { s.cache = c }
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithMRNGenerator(g *MRNGenerator) Option {
	return func(s *Service) { s.mrn = g }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		cache:     cache.Noop[uuid.UUID, *Patient]{},
		publisher: events.PublisherFunc(func(context.Context, events.Event) error { return nil }),
		mrn:       NewMRNGenerator(""),
		logger:    zerolog.Nop(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) Create(ctx context.Context, req *CreatePatientRequest) (*PatientResponse, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	p, err := req.toEntity()
	if err != nil {
		return nil, err
	}
	p.ID = uuid.New()
	p.CreatedAt = s.timestamp()
	p.UpdatedAt = p.CreatedAt

	if err := s.insert(ctx, p); err != nil {
		return nil, err
	}

	s.cache.Put(ctx, p.ID, p.Clone())
	resp := ToResponse(p)
	s.publish(ctx, EventCreated, p.ID, resp)
	return resp, nil
}

// insert persists p. A client-supplied MRN that collides is a conflict; a
// generated one is regenerated up to maxMRNAttempts times.
func (s *Service) insert(ctx context.Context, p *Patient) error {
	if p.MedicalRecordNumber != "" {
		return s.repo.Create(ctx, p)
	}
	var err error
	for attempt := 1; attempt <= maxMRNAttempts; attempt++ {
		mrn, genErr := s.mrn.Next()
		if genErr != nil {
			return &DependencyError{Op: "generate mrn", Err: genErr}
		}
		p.MedicalRecordNumber = mrn

		err = s.repo.Create(ctx, p)
		var ce *ConflictError
		if !errors.As(err, &ce) || ce.Field != "medicalRecordNumber" {
			return err
		}
		s.logger.Warn().
			Str("mrn", mrn).
			Int("attempt", attempt).
			Msg("generated mrn collided, regenerating")
	}
	return err
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*PatientResponse, error) {
	if p, ok := s.cache.Get(ctx, id); ok {
		return ToResponse(p.Clone()), nil
	}
	token := s.fence.Begin(id)
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.fence.Commit(id, token, nil)
		return nil, err
	}
	s.fence.Commit(id, token, func() { s.cache.Put(ctx, id, p.Clone()) })
	return ToResponse(p), nil
}

func (s *Service) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	if _, ok := s.cache.Get(ctx, id); ok {
		return true, nil
	}
	return s.repo.Exists(ctx, id)
}

func (s *Service) List(ctx context.Context, params pagination.Params) (*pagination.Page[*PatientResponse], error) {
	if _, err := params.OrderBy(sortColumns, defaultOrder); err != nil {
		return nil, newValidationError("sort", err.Error())
	}
	patients, total, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, err
	}
	return toPage(patients, total, params), nil
}

// Search applies the filter; an empty filter is the same as List.
func (s *Service) Search(ctx context.Context, filter SearchFilter, params pagination.Params) (*pagination.Page[*PatientResponse], error) {
	if filter.IsEmpty() {
		return s.List(ctx, params)
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, newValidationError("status", "must be one of: active inactive deceased")
	}
	if _, err := params.OrderBy(sortColumns, defaultOrder); err != nil {
		return nil, newValidationError("sort", err.Error())
	}
	patients, total, err := s.repo.Search(ctx, filter, params)
	if err != nil {
		return nil, err
	}
	return toPage(patients, total, params), nil
}

// Update merge-patches the stored record with the fields present in req.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req *UpdatePatientRequest) (*PatientResponse, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := req.applyTo(p); err != nil {
		return nil, err
	}
	p.UpdatedAt = s.advance(p.UpdatedAt)

	if err := s.repo.Update(ctx, p); err != nil {
		if errors.Is(err, ErrNotFound) {
			s.invalidate(ctx, id)
		}
		return nil, err
	}

	s.invalidate(ctx, id)
	resp := ToResponse(p)
	s.publish(ctx, EventUpdated, id, resp)
	return resp, nil
}

// Delete removes the record permanently.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	s.publish(ctx, EventDeleted, id, DeletedPayload{ID: id, MedicalRecordNumber: p.MedicalRecordNumber})
	return nil
}

func (s *Service) invalidate(ctx context.Context, id uuid.UUID) {
	s.fence.Bump(id)
	s.cache.Invalidate(ctx, id)
}

// publish hands the event to the bus. Failures are logged and swallowed; the
// write has already committed.
func (s *Service) publish(ctx context.Context, eventType string, id uuid.UUID, data any) {
	evt := events.New(eventType, id.String(), data)
	if err := s.publisher.Publish(context.WithoutCancel(ctx), evt); err != nil {
		s.logger.Error().Err(err).
			Str("event_type", eventType).
			Str("event_id", evt.ID).
			Str("patient_id", id.String()).
			Msg("failed to publish patient event")
	}
}

func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// advance returns a timestamp strictly after prev, at the storage's
// microsecond resolution.
func (s *Service) advance(prev time.Time) time.Time {
	t := s.timestamp()
	if !t.After(prev) {
		t = prev.Add(time.Microsecond)
	}
	return t
}

func toPage(patients []*Patient, total int, params pagination.Params) *pagination.Page[*PatientResponse] {
	content := make([]*PatientResponse, 0, len(patients))
	for _, p := range patients {
		content = append(content, ToResponse(p))
	}
	return pagination.NewPage(content, total, params)
}
