package scheduling

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type OperatoryInput struct {
	ClinicID    uuid.UUID
	Name        string
	Description string
}

type OperatoryUpdate struct {
	ClinicID    uuid.UUID
	ID          uuid.UUID
	Name        *string
	Description *string
	IsActive    *bool
}

func (s *Service) CreateOperatory(ctx context.Context, in OperatoryInput) (*Operatory, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("name", "is required")
	}
	if _, err := s.repo.GetClinic(ctx, in.ClinicID); err != nil {
		return nil, fmt.Errorf("load clinic: %w", err)
	}

	now := s.clock.Now()
	o := &Operatory{
		ID:          uuid.New(),
		ClinicID:    in.ClinicID,
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateOperatory(ctx, o); err != nil {
		return nil, fmt.Errorf("create operatory: %w", err)
	}
	return o, nil
}

func (s *Service) GetOperatory(ctx context.Context, clinicID, id uuid.UUID) (*Operatory, error) {
	o, err := s.repo.GetOperatory(ctx, clinicID, id)
	if err != nil {
		return nil, fmt.Errorf("get operatory: %w", err)
	}
	return o, nil
}

func (s *Service) ListOperatories(ctx context.Context, clinicID uuid.UUID) ([]Operatory, error) {
	ops, err := s.repo.ListOperatories(ctx, clinicID)
	if err != nil {
		return nil, fmt.Errorf("list operatories: %w", err)
	}
	return ops, nil
}

func (s *Service) UpdateOperatory(ctx context.Context, u OperatoryUpdate) (*Operatory, error) {
	o, err := s.repo.GetOperatory(ctx, u.ClinicID, u.ID)
	if err != nil {
		return nil, fmt.Errorf("load operatory: %w", err)
	}

	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" {
			return nil, invalid("name", "must not be empty")
		}
		o.Name = name
	}
	if u.Description != nil {
		o.Description = strings.TrimSpace(*u.Description)
	}
	if u.IsActive != nil {
		o.IsActive = *u.IsActive
	}
	o.UpdatedAt = s.clock.Now()

	if err := s.repo.UpdateOperatory(ctx, o); err != nil {
		return nil, fmt.Errorf("update operatory: %w", err)
	}
	return o, nil
}
