package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	dErrors "diligence/pkg/domain-errors"
)

// SubjectKind is what is being investigated.
type SubjectKind string

const (
	SubjectParty        SubjectKind = "party"
	SubjectIntermediary SubjectKind = "intermediary"
	SubjectDocument     SubjectKind = "document"
)

const (
	MaxNameLength         = 300
	MaxIdentifiers        = 20
	MaxSupplementaryBytes = 64 << 10
	MaxDocumentBytes      = 1 << 20
)

// Identifier keys the planner understands. Other keys are passed to the
// oracle as context only.
const (
	IdentifierCompanyNumber        = "company_number"
	IdentifierAircraftRegistration = "aircraft_registration"
)

// Request is the immutable input of one investigation.
type Request struct {
	SubjectKind   SubjectKind       `json:"subject_kind,omitempty" yaml:"subject_kind" validate:"omitempty,oneof=party intermediary document"`
	Name          string            `json:"name" yaml:"name" validate:"required,max=300"`
	Jurisdiction  string            `json:"jurisdiction,omitempty" yaml:"jurisdiction" validate:"max=64"`
	Identifiers   map[string]string `json:"identifiers,omitempty" yaml:"identifiers" validate:"max=20,dive,keys,required,max=64,endkeys,max=256"`
	Sector        string            `json:"sector,omitempty" yaml:"sector" validate:"max=64"`
	Supplementary string            `json:"supplementary,omitempty" yaml:"supplementary"`
	DocumentText  string            `json:"document_text,omitempty" yaml:"document_text"`
}

var validate = validator.New()

// Validate reports the first problem as a CodeValidation domain error. It is
// the only check that can reject an investigation.
func (r Request) Validate() error {
	n := r.Normalized()
	if err := validate.Struct(n); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, describe(err))
	}
	if len(n.Supplementary) > MaxSupplementaryBytes {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("supplementary must be at most %d bytes", MaxSupplementaryBytes))
	}
	if len(n.DocumentText) > MaxDocumentBytes {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("document_text must be at most %d bytes", MaxDocumentBytes))
	}
	if n.SubjectKind == SubjectDocument && n.DocumentText == "" {
		return dErrors.New(dErrors.CodeValidation, "document_text is required when subject_kind is document")
	}
	return nil
}

// Normalized returns a trimmed copy with defaults applied. The receiver is
// never modified.
func (r Request) Normalized() Request {
	out := Request{
		SubjectKind:   SubjectKind(strings.ToLower(strings.TrimSpace(string(r.SubjectKind)))),
		Name:          strings.TrimSpace(r.Name),
		Jurisdiction:  strings.ToUpper(strings.TrimSpace(r.Jurisdiction)),
		Sector:        strings.TrimSpace(r.Sector),
		Supplementary: strings.TrimSpace(r.Supplementary),
		DocumentText:  strings.TrimSpace(r.DocumentText),
	}
	if out.SubjectKind == "" {
		out.SubjectKind = SubjectParty
	}
	if len(r.Identifiers) > 0 {
		out.Identifiers = make(map[string]string, len(r.Identifiers))
		for k, v := range r.Identifiers {
			out.Identifiers[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
		}
	}
	return out
}

// Identifier returns a trimmed identifier value.
func (r Request) Identifier(key string) string {
	return strings.TrimSpace(r.Identifiers[key])
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	field := fieldName(fe.StructField())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		if fe.Kind().String() == "map" {
			return fmt.Sprintf("%s must have at most %s entries", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return field + " is invalid"
	}
}

var fieldNames = map[string]string{
	"SubjectKind":   "subject_kind",
	"Name":          "name",
	"Jurisdiction":  "jurisdiction",
	"Identifiers":   "identifiers",
	"Sector":        "sector",
	"Supplementary": "supplementary",
	"DocumentText":  "document_text",
}

func fieldName(structField string) string {
	base := structField
	if i := strings.IndexByte(base, '['); i >= 0 {
		base = base[:i]
	}
	if n, ok := fieldNames[base]; ok {
		return n
	}
	return strings.ToLower(base)
}
