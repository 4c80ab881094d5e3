package service

import (
	"context"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

// StaffService handles staff business logic.
type StaffService struct {
	staffRepo *repository.StaffRepository
	roleRepo  *repository.RoleRepository
}

// NewStaffService creates a new StaffService.
func NewStaffService(staffRepo *repository.StaffRepository, roleRepo *repository.RoleRepository) *StaffService {
	return &StaffService{staffRepo: staffRepo, roleRepo: roleRepo}
}

// GetByEmail retrieves a staff member by email.
func (s *StaffService) GetByEmail(ctx context.Context, email string) (*model.Staff, error) {
	return s.staffRepo.GetByEmail(ctx, email)
}

// GetByID retrieves a staff member by ID.
func (s *StaffService) GetByID(ctx context.Context, id int) (*model.Staff, error) {
	return s.staffRepo.GetByID(ctx, id)
}

// GetPermissions retrieves permission codes for a staff member's role.
func (s *StaffService) GetPermissions(ctx context.Context, roleID int) ([]string, error) {
	return s.roleRepo.GetPermissionsByRoleID(ctx, roleID)
}

// ListRoles returns every role with its permissions.
func (s *StaffService) ListRoles(ctx context.Context) ([]model.Role, error) {
	return s.roleRepo.ListRoles(ctx)
}

// Create creates a new staff member. PasswordHash must already be hashed.
func (s *StaffService) Create(ctx context.Context, staff *model.Staff) error {
	return s.staffRepo.Create(ctx, staff)
}
