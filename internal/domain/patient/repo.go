package patient

import (
	"context"

	"github.com/google/uuid"

	"github.com/ehr/patient-service/pkg/pagination"
)

// Repository persists patients. Lookups of an unknown id return ErrNotFound,
// uniqueness violations return *ConflictError and any other storage failure
// is a *DependencyError.
type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, params pagination.Params) ([]*Patient, int, error)
	Search(ctx context.Context, filter SearchFilter, params pagination.Params) ([]*Patient, int, error)
}

// sortColumns maps API sort fields to columns.
var sortColumns = map[string]string{
	"lastName":            "last_name",
	"firstName":           "first_name",
	"dateOfBirth":         "date_of_birth",
	"createdAt":           "created_at",
	"updatedAt":           "updated_at",
	"medicalRecordNumber": "medical_record_number",
}

const defaultOrder = "last_name ASC, first_name ASC, id ASC"
