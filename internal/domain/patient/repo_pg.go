package patient

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ehr/patient-service/pkg/pagination"
)

// Querier is satisfied by *pgxpool.Pool, *pgxpool.Conn and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

const uniqueViolation = "23505"

// constraintFields maps unique constraints to the API field they guard.
var constraintFields = map[string]string{
	"patient_pkey":      "id",
	"patient_mrn_key":   "medicalRecordNumber",
	"patient_email_key": "email",
}

type repoPG struct {
	db Querier
}

func NewRepo(db Querier) Repository {
	return &repoPG{db: db}
}

const patientCols = `id, first_name, last_name, date_of_birth, gender, email, phone_number,
	address_street, address_city, address_state, address_postal_code, address_country,
	emergency_contact_name, emergency_contact_relationship, emergency_contact_phone,
	medical_record_number, status, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}

	street, city, state, postal, country := addressCols(p.Address)
	ecName, ecRel, ecPhone := contactCols(p.EmergencyContact)
	_, err := r.db.Exec(ctx, `
		INSERT INTO patient (`+patientCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		p.ID, p.FirstName, p.LastName, p.DateOfBirth, p.Gender, p.Email, p.PhoneNumber,
		street, city, state, postal, country,
		ecName, ecRel, ecPhone,
		p.MedicalRecordNumber, p.Status, p.CreatedAt, p.UpdatedAt,
	)
	return mapError("patient create", err, p)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := scanPatient(r.db.QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
	if err != nil {
		return nil, mapError("patient get", err, nil)
	}
	return p, nil
}

func (r *repoPG) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM patient WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, &DependencyError{Op: "patient exists", Err: err}
	}
	return exists, nil
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	street, city, state, postal, country := addressCols(p.Address)
	ecName, ecRel, ecPhone := contactCols(p.EmergencyContact)
	tag, err := r.db.Exec(ctx, `
		UPDATE patient SET
			first_name = $2, last_name = $3, date_of_birth = $4, gender = $5, email = $6, phone_number = $7,
			address_street = $8, address_city = $9, address_state = $10, address_postal_code = $11, address_country = $12,
			emergency_contact_name = $13, emergency_contact_relationship = $14, emergency_contact_phone = $15,
			medical_record_number = $16, status = $17, updated_at = $18
		WHERE id = $1`,
		p.ID, p.FirstName, p.LastName, p.DateOfBirth, p.Gender, p.Email, p.PhoneNumber,
		street, city, state, postal, country,
		ecName, ecRel, ecPhone,
		p.MedicalRecordNumber, p.Status, p.UpdatedAt,
	)
	if err != nil {
		return mapError("patient update", err, p)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM patient WHERE id = $1`, id)
	if err != nil {
		return mapError("patient delete", err, nil)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, params pagination.Params) ([]*Patient, int, error) {
	return r.Search(ctx, SearchFilter{}, params)
}

func (r *repoPG) Search(ctx context.Context, filter SearchFilter, params pagination.Params) ([]*Patient, int, error) {
	orderBy, err := params.OrderBy(sortColumns, defaultOrder)
	if err != nil {
		return nil, 0, newValidationError("sort", err.Error())
	}
	if orderBy != defaultOrder {
		orderBy += ", id ASC"
	}

	qb := newSearchQuery(patientCols)
	qb.apply(filter)
	qb.orderBy = orderBy

	var total int
	if err := r.db.QueryRow(ctx, qb.countSQL(), qb.args...).Scan(&total); err != nil {
		return nil, 0, &DependencyError{Op: "patient count", Err: err}
	}

	rows, err := r.db.Query(ctx, qb.dataSQL(), qb.dataArgs(params.Limit(), params.Offset())...)
	if err != nil {
		return nil, 0, &DependencyError{Op: "patient search", Err: err}
	}
	defer rows.Close()

	var patients []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, &DependencyError{Op: "patient scan", Err: err}
		}
		patients = append(patients, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, &DependencyError{Op: "patient search", Err: err}
	}
	return patients, total, nil
}

// mapError translates driver errors into the repository's error contract.
func mapError(op string, err error, p *Patient) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		field, ok := constraintFields[pgErr.ConstraintName]
		if !ok {
			field = pgErr.ConstraintName
		}
		ce := &ConflictError{Field: field}
		if p != nil && field == "medicalRecordNumber" {
			ce.Value = p.MedicalRecordNumber
		}
		return ce
	}
	return &DependencyError{Op: op, Err: err}
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPatient(row rowScanner) (*Patient, error) {
	var (
		p                               Patient
		gender                          *string
		street, city, state             *string
		postal, country                 *string
		ecName, ecRelationship, ecPhone *string
	)
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.DateOfBirth, &gender, &p.Email, &p.PhoneNumber,
		&street, &city, &state, &postal, &country,
		&ecName, &ecRelationship, &ecPhone,
		&p.MedicalRecordNumber, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if gender != nil {
		g := Gender(*gender)
		p.Gender = &g
	}
	if street != nil {
		p.Address = &Address{
			Street: *street, City: deref(city), State: deref(state), PostalCode: deref(postal), Country: deref(country),
		}
	}
	if ecName != nil {
		p.EmergencyContact = &EmergencyContact{
			Name: *ecName, Relationship: deref(ecRelationship), PhoneNumber: deref(ecPhone),
		}
	}
	p.DateOfBirth = p.DateOfBirth.UTC()
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func addressCols(a *Address) (street, city, state, postal, country *string) {
	if a == nil {
		return nil, nil, nil, nil, nil
	}
	return &a.Street, &a.City, &a.State, &a.PostalCode, &a.Country
}

func contactCols(ec *EmergencyContact) (name, relationship, phone *string) {
	if ec == nil {
		return nil, nil, nil
	}
	return &ec.Name, &ec.Relationship, &ec.PhoneNumber
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
