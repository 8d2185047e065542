package rbac

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/meridian-pos/meridian-pos/internal/shared"
)

// seedRoles maps the built-in roles to the permissions they start with.
// Operators can reshape roles afterwards; seeding only fills gaps.
var seedRoles = map[string][]string{
	"admin": shared.AllScopes(),
	"manager": {
		shared.PermCatalogView, shared.PermCatalogEdit, shared.PermCatalogPrice,
		shared.PermStockView, shared.PermStockAdjust,
		shared.PermAuditResolve, shared.PermAuditDelete,
		shared.PermPurchasesView, shared.PermPurchasesEdit,
		shared.PermSalesView, shared.PermSalesEdit, shared.PermSalesAuthorize,
		shared.PermExpensesView, shared.PermExpensesEdit,
		shared.PermReportsView,
	},
	"controller": {
		shared.PermCatalogView,
		shared.PermStockView,
		shared.PermAuditSubmit,
		shared.PermReportsView,
	},
	"cashier": {
		shared.PermCatalogView,
		shared.PermStockView,
		shared.PermSalesView, shared.PermSalesEdit,
	},
}

// Seed ensures the built-in roles and every known permission exist.
func (s *Service) Seed(ctx context.Context) error {
	permIDs := make(map[string]int64, len(shared.AllScopes()))
	for _, name := range shared.AllScopes() {
		perm, err := s.EnsurePermission(ctx, name, "")
		if err != nil {
			return err
		}
		permIDs[name] = perm.ID
	}
	for name, perms := range seedRoles {
		role, err := s.ensureRole(ctx, name)
		if err != nil {
			return err
		}
		for _, perm := range perms {
			if _, err := s.pool.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_id)
VALUES ($1,$2) ON CONFLICT DO NOTHING`, role.ID, permIDs[perm]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Service) ensureRole(ctx context.Context, name string) (Role, error) {
	var role Role
	err := s.pool.QueryRow(ctx, `SELECT id, name, description, created_at, updated_at FROM roles WHERE name=$1`, name).
		Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if err == nil {
		return role, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Role{}, err
	}
	return s.CreateRole(ctx, name, "")
}
