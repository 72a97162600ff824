package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Create(ctx context.Context, req CreateOrganizationRequest) (*Organization, error)
	GetByID(ctx context.Context, id snowflake.ID) (*Organization, error)
}

type CreateOrganizationRequest struct {
	Name         string
	SupportEmail string
}

var (
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrOrganizationExists  = errors.New("organization_exists")
)
