package shared

// Platform permissions.
const (
	PermUsersView = "users.view"
	PermUsersEdit = "users.edit"

	PermRolesView = "roles.view"
	PermRolesEdit = "roles.edit"
)

// Catalog permissions.
const (
	PermCatalogView  = "catalog.view"
	PermCatalogEdit  = "catalog.edit"
	PermCatalogPrice = "catalog.price"
)

// Stock permissions.
const (
	PermStockView   = "stock.view"
	PermStockAdjust = "stock.adjust"

	PermAuditSubmit  = "stockaudit.submit"
	PermAuditResolve = "stockaudit.resolve"
	PermAuditDelete  = "stockaudit.delete"
)

// Transaction permissions.
const (
	PermPurchasesView = "purchases.view"
	PermPurchasesEdit = "purchases.edit"

	PermSalesView      = "sales.view"
	PermSalesEdit      = "sales.edit"
	PermSalesAuthorize = "sales.authorize"

	PermExpensesView = "expenses.view"
	PermExpensesEdit = "expenses.edit"

	PermReportsView = "reports.view"
)

// AllScopes lists every permission known to the application, used when
// seeding roles.
func AllScopes() []string {
	return []string{
		PermUsersView, PermUsersEdit,
		PermRolesView, PermRolesEdit,
		PermCatalogView, PermCatalogEdit, PermCatalogPrice,
		PermStockView, PermStockAdjust,
		PermAuditSubmit, PermAuditResolve, PermAuditDelete,
		PermPurchasesView, PermPurchasesEdit,
		PermSalesView, PermSalesEdit, PermSalesAuthorize,
		PermExpensesView, PermExpensesEdit,
		PermReportsView,
	}
}
