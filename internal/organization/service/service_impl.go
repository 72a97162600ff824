package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/wealthdesk/internal/clock"
	"github.com/smallbiznis/wealthdesk/internal/organization/domain"
	"gorm.io/gorm"
)

type service struct {
	db    *gorm.DB
	repo  domain.Repository
	genID *snowflake.Node
	clock clock.Clock
}

func NewService(db *gorm.DB, repo domain.Repository, genID *snowflake.Node, clk clock.Clock) domain.Service {
	return &service{
		db:    db,
		repo:  repo,
		genID: genID,
		clock: clk,
	}
}

func (s *service) Create(ctx context.Context, req domain.CreateOrganizationRequest) (*domain.Organization, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	existing, err := s.repo.FindBySlug(ctx, slug.Make(name))
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrOrganizationExists
	}

	now := s.clock.Now().UTC()
	org := domain.Organization{
		ID:           s.genID.Generate(),
		Name:         name,
		Slug:         slug.Make(name),
		SupportEmail: strings.TrimSpace(req.SupportEmail),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, org); err != nil {
		return nil, err
	}

	return &org, nil
}

func (s *service) GetByID(ctx context.Context, id snowflake.ID) (*domain.Organization, error) {
	if id == 0 {
		return nil, domain.ErrInvalidOrganization
	}

	org, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, domain.ErrInvalidOrganization
	}
	return org, nil
}
