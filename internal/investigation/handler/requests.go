package handler

import (
	"diligence/internal/investigation/models"
	dErrors "diligence/pkg/domain-errors"
)

// CreateRequest is the HTTP request body for POST /investigations.
type CreateRequest struct {
	SubjectKind   string            `json:"subject_kind"`
	Name          string            `json:"name"`
	Jurisdiction  string            `json:"jurisdiction"`
	Identifiers   map[string]string `json:"identifiers"`
	Sector        string            `json:"sector"`
	Supplementary string            `json:"supplementary"`
	DocumentText  string            `json:"document_text"`
}

// Validate only rejects a missing body. Field rules are enforced by the
// service so that rejected investigations are still audited.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *CreateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	return nil
}

// ToModel converts the body into the domain request.
func (r *CreateRequest) ToModel() models.Request {
	return models.Request{
		SubjectKind:   models.SubjectKind(r.SubjectKind),
		Name:          r.Name,
		Jurisdiction:  r.Jurisdiction,
		Identifiers:   r.Identifiers,
		Sector:        r.Sector,
		Supplementary: r.Supplementary,
		DocumentText:  r.DocumentText,
	}
}
