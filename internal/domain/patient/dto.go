package patient

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

// Ten digits, or E.164.
var phonePattern = regexp.MustCompile(`^(\d{10}|\+[1-9]\d{1,14})$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("past_date", func(fl validator.FieldLevel) bool {
		d, err := time.Parse(dateLayout, fl.Field().String())
		if err != nil {
			return false
		}
		today := time.Now().UTC().Truncate(24 * time.Hour)
		return d.Before(today)
	})
	return v
}

type AddressDTO struct {
	Street     string `json:"street" validate:"required,notblank,max=255"`
	City       string `json:"city" validate:"required,notblank,max=100"`
	State      string `json:"state" validate:"required,notblank,max=100"`
	PostalCode string `json:"postalCode" validate:"required,notblank,max=20"`
	Country    string `json:"country" validate:"required,notblank,max=100"`
}

type EmergencyContactDTO struct {
	Name         string `json:"name" validate:"required,notblank,max=200"`
	Relationship string `json:"relationship" validate:"required,notblank,max=50"`
	PhoneNumber  string `json:"phoneNumber" validate:"required,phone"`
}

type CreatePatientRequest struct {
	FirstName           string               `json:"firstName" validate:"required,notblank,max=100"`
	LastName            string               `json:"lastName" validate:"required,notblank,max=100"`
	DateOfBirth         string               `json:"dateOfBirth" validate:"required,past_date"`
	Gender              *string              `json:"gender,omitempty" validate:"omitempty,oneof=male female other unknown"`
	Email               *string              `json:"email,omitempty" validate:"omitempty,email,max=254"`
	PhoneNumber         *string              `json:"phoneNumber,omitempty" validate:"omitempty,phone"`
	Address             *AddressDTO          `json:"address,omitempty"`
	EmergencyContact    *EmergencyContactDTO `json:"emergencyContact,omitempty"`
	MedicalRecordNumber *string              `json:"medicalRecordNumber,omitempty" validate:"omitempty,notblank,max=50"`
	Status              *string              `json:"status,omitempty" validate:"omitempty,oneof=active inactive deceased"`
}

// UpdatePatientRequest is a merge-patch: nil fields are left untouched and
// non-nil sub-objects replace the stored one wholesale.
type UpdatePatientRequest struct {
	FirstName           *string              `json:"firstName,omitempty" validate:"omitempty,notblank,max=100"`
	LastName            *string              `json:"lastName,omitempty" validate:"omitempty,notblank,max=100"`
	DateOfBirth         *string              `json:"dateOfBirth,omitempty" validate:"omitempty,past_date"`
	Gender              *string              `json:"gender,omitempty" validate:"omitempty,oneof=male female other unknown"`
	Email               *string              `json:"email,omitempty" validate:"omitempty,email,max=254"`
	PhoneNumber         *string              `json:"phoneNumber,omitempty" validate:"omitempty,phone"`
	Address             *AddressDTO          `json:"address,omitempty"`
	EmergencyContact    *EmergencyContactDTO `json:"emergencyContact,omitempty"`
	MedicalRecordNumber *string              `json:"medicalRecordNumber,omitempty" validate:"omitempty,notblank,max=50"`
	Status              *string              `json:"status,omitempty" validate:"omitempty,oneof=active inactive deceased"`
}

type PatientResponse struct {
	ID                  uuid.UUID            `json:"id"`
	FirstName           string               `json:"firstName"`
	LastName            string               `json:"lastName"`
	DateOfBirth         string               `json:"dateOfBirth"`
	Gender              *Gender              `json:"gender,omitempty"`
	Email               *string              `json:"email,omitempty"`
	PhoneNumber         *string              `json:"phoneNumber,omitempty"`
	Address             *AddressDTO          `json:"address,omitempty"`
	EmergencyContact    *EmergencyContactDTO `json:"emergencyContact,omitempty"`
	MedicalRecordNumber string               `json:"medicalRecordNumber"`
	Status              Status               `json:"status"`
	CreatedAt           time.Time            `json:"createdAt"`
	UpdatedAt           time.Time            `json:"updatedAt"`
}

// DeletedPayload is the body of a patient.deleted event.
type DeletedPayload struct {
	ID                  uuid.UUID `json:"id"`
	MedicalRecordNumber string    `json:"medicalRecordNumber"`
}

// validateStruct runs the tag rules and flattens failures into a
// ValidationError keyed by JSON path.
func validateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{Field: fieldPath(fe.Namespace()), Message: fieldMessage(fe)})
	}
	return &ValidationError{Fields: fields}
}

// fieldPath drops the leading struct name: "CreatePatientRequest.address.city" -> "address.city".
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return "must not be blank"
	case "email":
		return "must be a valid email address"
	case "phone":
		return "must be 10 digits or E.164 format"
	case "past_date":
		return "must be a date in the past (YYYY-MM-DD)"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	}
	return "is invalid"
}

func parseDate(field, raw string) (time.Time, error) {
	d, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, newValidationError(field, "must be a date in the past (YYYY-MM-DD)")
	}
	return d, nil
}

func normalizeEmail(e *string) *string {
	if e == nil {
		return nil
	}
	v := strings.ToLower(strings.TrimSpace(*e))
	return &v
}

func (r *CreatePatientRequest) toEntity() (*Patient, error) {
	dob, err := parseDate("dateOfBirth", r.DateOfBirth)
	if err != nil {
		return nil, err
	}
	p := &Patient{
		FirstName:        strings.TrimSpace(r.FirstName),
		LastName:         strings.TrimSpace(r.LastName),
		DateOfBirth:      dob,
		Email:            normalizeEmail(r.Email),
		PhoneNumber:      r.PhoneNumber,
		Address:          r.Address.toEntity(),
		EmergencyContact: r.EmergencyContact.toEntity(),
		Status:           StatusActive,
	}
	if r.Gender != nil {
		g := Gender(*r.Gender)
		p.Gender = &g
	}
	if r.MedicalRecordNumber != nil {
		p.MedicalRecordNumber = strings.TrimSpace(*r.MedicalRecordNumber)
	}
	if r.Status != nil {
		p.Status = Status(*r.Status)
	}
	return p, nil
}

// applyTo overwrites the fields of p that are present in the request.
func (r *UpdatePatientRequest) applyTo(p *Patient) error {
	if r.FirstName != nil {
		p.FirstName = strings.TrimSpace(*r.FirstName)
	}
	if r.LastName != nil {
		p.LastName = strings.TrimSpace(*r.LastName)
	}
	if r.DateOfBirth != nil {
		dob, err := parseDate("dateOfBirth", *r.DateOfBirth)
		if err != nil {
			return err
		}
		p.DateOfBirth = dob
	}
	if r.Gender != nil {
		g := Gender(*r.Gender)
		p.Gender = &g
	}
	if r.Email != nil {
		p.Email = normalizeEmail(r.Email)
	}
	if r.PhoneNumber != nil {
		ph := *r.PhoneNumber
		p.PhoneNumber = &ph
	}
	if r.Address != nil {
		p.Address = r.Address.toEntity()
	}
	if r.EmergencyContact != nil {
		p.EmergencyContact = r.EmergencyContact.toEntity()
	}
	if r.MedicalRecordNumber != nil {
		p.MedicalRecordNumber = strings.TrimSpace(*r.MedicalRecordNumber)
	}
	if r.Status != nil {
		p.Status = Status(*r.Status)
	}
	return nil
}

func (a *AddressDTO) toEntity() *Address {
	if a == nil {
		return nil
	}
	return &Address{
		Street:     strings.TrimSpace(a.Street),
		City:       strings.TrimSpace(a.City),
		State:      strings.TrimSpace(a.State),
		PostalCode: strings.TrimSpace(a.PostalCode),
		Country:    strings.TrimSpace(a.Country),
	}
}

func (ec *EmergencyContactDTO) toEntity() *EmergencyContact {
	if ec == nil {
		return nil
	}
	return &EmergencyContact{
		Name:         strings.TrimSpace(ec.Name),
		Relationship: strings.TrimSpace(ec.Relationship),
		PhoneNumber:  ec.PhoneNumber,
	}
}

func ToResponse(p *Patient) *PatientResponse {
	resp := &PatientResponse{
		ID:                  p.ID,
		FirstName:           p.FirstName,
		LastName:            p.LastName,
		DateOfBirth:         p.DateOfBirth.Format(dateLayout),
		Gender:              p.Gender,
		Email:               p.Email,
		PhoneNumber:         p.PhoneNumber,
		MedicalRecordNumber: p.MedicalRecordNumber,
		Status:              p.Status,
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
	}
	if a := p.Address; a != nil {
		resp.Address = &AddressDTO{
			Street: a.Street, City: a.City, State: a.State, PostalCode: a.PostalCode, Country: a.Country,
		}
	}
	if ec := p.EmergencyContact; ec != nil {
		resp.EmergencyContact = &EmergencyContactDTO{
			Name: ec.Name, Relationship: ec.Relationship, PhoneNumber: ec.PhoneNumber,
		}
	}
	return resp
}
