package common

// Role identifiers consulted before privileged operations. Role membership is
// stored on the state manager and mutated only through the administrative path.
const (
	// RoleLendingAdmin may update token configs, mint balances, withdraw
	// reserves, and push bare oracle quotes.
	RoleLendingAdmin = "ROLE_LENDING_ADMIN"
	// RoleLiquidator may close undercollateralized positions.
	RoleLiquidator = "ROLE_LIQUIDATOR"
	// RoleDelegateManager may draw delegated borrows.
	RoleDelegateManager = "ROLE_DELEGATE_MANAGER"
	// RoleOracle marks addresses allowed to sign price proofs.
	RoleOracle = "ROLE_ORACLE"
)
