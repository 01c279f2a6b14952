package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/petlog/internal/plan/domain"
	"github.com/smallbiznis/petlog/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	genID *snowflake.Node
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("plan.service"),
		repo:  p.Repo,
		genID: p.GenID,
	}
}

func (s *Service) ListActive(ctx context.Context) ([]domain.Response, error) {
	return s.list(ctx, true)
}

func (s *Service) ListAll(ctx context.Context) ([]domain.Response, error) {
	return s.list(ctx, false)
}

func (s *Service) list(ctx context.Context, activeOnly bool) ([]domain.Response, error) {
	items, err := s.repo.List(ctx, s.db, activeOnly)
	if err != nil {
		return nil, err
	}
	resp := make([]domain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, toResponse(&items[i]))
	}
	return resp, nil
}

func (s *Service) GetActiveByName(ctx context.Context, name string) (*domain.Plan, error) {
	name = NormalizeName(name)
	if name == "" || domain.IsReservedName(name) {
		return nil, domain.ErrNotFound
	}
	item, err := s.repo.FindByName(ctx, s.db, name)
	if err != nil {
		return nil, err
	}
	if item == nil || !item.IsActive {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

// Resolve maps a stored subscription plan name onto the catalog. Inactive
// catalog rows still resolve so existing subscribers keep their price.
func (s *Service) Resolve(ctx context.Context, name string) (domain.Ref, error) {
	name = strings.TrimSpace(name)
	switch name {
	case domain.NameTrial:
		return domain.Ref{Kind: domain.RefTrial, Name: name}, nil
	case domain.NameFree:
		return domain.Ref{Kind: domain.RefFree, Name: name}, nil
	case "", domain.NameExtraRooms:
		return domain.Ref{Kind: domain.RefUnknown, Name: name}, nil
	}

	item, err := s.repo.FindByName(ctx, s.db, name)
	if err != nil {
		return domain.Ref{}, err
	}
	if item == nil {
		return domain.Ref{Kind: domain.RefUnknown, Name: name}, nil
	}
	return domain.Ref{Kind: domain.RefCatalog, Name: name, Plan: item}, nil
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Response, error) {
	name := NormalizeName(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	if domain.IsReservedName(name) {
		return nil, domain.ErrReservedName
	}
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		return nil, domain.ErrInvalidDisplay
	}
	if req.Price < 0 {
		return nil, domain.ErrInvalidPrice
	}
	if req.MaxRooms <= 0 {
		return nil, domain.ErrInvalidMaxRooms
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	now := time.Now().UTC()
	record := &domain.Plan{
		ID:          s.genID.Generate(),
		Name:        name,
		DisplayName: displayName,
		Description: trimOptional(req.Description),
		Price:       req.Price,
		MaxRooms:    req.MaxRooms,
		IsActive:    active,
		SortOrder:   req.SortOrder,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Insert(ctx, s.db, record); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateName
		}
		return nil, err
	}

	s.log.Info("plan created", zap.String("plan", name), zap.Int64("price", req.Price))
	resp := toResponse(record)
	return &resp, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateRequest) (*domain.Response, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(req.ID))
	if err != nil {
		return nil, domain.ErrInvalidID
	}

	item, err := s.repo.FindByID(ctx, s.db, id.Int64())
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}

	if req.DisplayName != nil {
		displayName := strings.TrimSpace(*req.DisplayName)
		if displayName == "" {
			return nil, domain.ErrInvalidDisplay
		}
		item.DisplayName = displayName
	}
	if req.Description != nil {
		item.Description = trimOptional(req.Description)
	}
	if req.Price != nil {
		if *req.Price < 0 {
			return nil, domain.ErrInvalidPrice
		}
		item.Price = *req.Price
	}
	if req.MaxRooms != nil {
		if *req.MaxRooms <= 0 {
			return nil, domain.ErrInvalidMaxRooms
		}
		item.MaxRooms = *req.MaxRooms
	}
	if req.IsActive != nil {
		item.IsActive = *req.IsActive
	}
	if req.SortOrder != nil {
		item.SortOrder = *req.SortOrder
	}

	item.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, s.db, item); err != nil {
		return nil, err
	}

	resp := toResponse(item)
	return &resp, nil
}

// Delete removes the catalog row only. Subscriptions keep the name and
// resolve it as an unknown plan from then on.
func (s *Service) Delete(ctx context.Context, id string) error {
	planID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return domain.ErrInvalidID
	}
	affected, err := s.repo.Delete(ctx, s.db, planID.Int64())
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	s.log.Info("plan deleted", zap.String("plan_id", planID.String()))
	return nil
}

// NormalizeName lowercases and slugifies plan identifiers using underscores,
// so "Pro Plus" and "pro-plus" both become "pro_plus".
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return strings.ReplaceAll(slug.Make(name), "-", "_")
}

func trimOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func toResponse(p *domain.Plan) domain.Response {
	return domain.Response{
		ID:          p.ID.String(),
		Name:        p.Name,
		DisplayName: p.DisplayName,
		Description: p.Description,
		Price:       p.Price,
		MaxRooms:    p.MaxRooms,
		IsActive:    p.IsActive,
		SortOrder:   p.SortOrder,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}
