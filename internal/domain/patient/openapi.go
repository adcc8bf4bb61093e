package patient

import "github.com/ehr/patient-service/internal/platform/openapi"

func str(format string) map[string]interface{} {
	s := map[string]interface{}{"type": "string"}
	if format != "" {
		s["format"] = format
	}
	return s
}

func enum(values ...string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "enum": values}
}

func object(required []string, props map[string]interface{}) map[string]interface{} {
	s := map[string]interface{}{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

var (
	addressSchema = object(
		[]string{"street", "city", "state", "postalCode", "country"},
		map[string]interface{}{
			"street":     str(""),
			"city":       str(""),
			"state":      str(""),
			"postalCode": str(""),
			"country":    str(""),
		},
	)
	contactSchema = object(
		[]string{"name", "relationship", "phoneNumber"},
		map[string]interface{}{
			"name":         str(""),
			"relationship": str(""),
			"phoneNumber":  str(""),
		},
	)
)

func writableProps() map[string]interface{} {
	return map[string]interface{}{
		"firstName":           str(""),
		"lastName":            str(""),
		"dateOfBirth":         str("date"),
		"gender":              enum("male", "female", "other", "unknown"),
		"email":               str("email"),
		"phoneNumber":         str(""),
		"address":             addressSchema,
		"emergencyContact":    contactSchema,
		"medicalRecordNumber": str(""),
		"status":              enum("active", "inactive", "deceased"),
	}
}

// OpenAPIResource describes the patient endpoints for the API document.
func OpenAPIResource() openapi.Resource {
	read := writableProps()
	read["id"] = str("uuid")
	read["createdAt"] = str("date-time")
	read["updatedAt"] = str("date-time")

	return openapi.Resource{
		Name:         "Patient",
		Path:         "/patients",
		Schema:       object(nil, read),
		CreateSchema: object([]string{"firstName", "lastName", "dateOfBirth"}, writableProps()),
		UpdateSchema: object(nil, writableProps()),
		SearchParams: []openapi.Param{
			{Name: "q", Description: "Matches first name, last name, email or MRN"},
			{Name: "query", Description: "Alias of q"},
			{Name: "name", Description: "Matches first or last name"},
			{Name: "firstName", Description: "First name fragment"},
			{Name: "lastName", Description: "Last name fragment"},
			{Name: "email", Description: "Exact email, case-insensitive"},
			{Name: "mrn", Description: "Exact medical record number"},
			{Name: "status", Schema: enum("active", "inactive", "deceased")},
		},
	}
}
