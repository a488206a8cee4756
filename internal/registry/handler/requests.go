package handler

import (
	"registrar/internal/registry/models"
	id "registrar/pkg/domain"
)

// CreateEntityRequest is the body of POST /entities.
type CreateEntityRequest struct {
	Seed    string         `json:"seed"`
	Profile models.Profile `json:"profile"`
}

// Validate rejects malformed input before it reaches the coordinator.
func (r CreateEntityRequest) Validate() error {
	if err := models.ValidateSeed([]byte(r.Seed)); err != nil {
		return err
	}
	return r.Profile.Validate()
}

// CreateEntityResponse is returned with 201 Created.
type CreateEntityResponse struct {
	Identity models.Identity `json:"identity"`
	Record   *models.Record  `json:"record"`
}

type ListOwnedResponse struct {
	Owner      id.AccountID      `json:"owner"`
	Identities []models.Identity `json:"identities"`
}

type CountResponse struct {
	Count uint64 `json:"count"`
}
