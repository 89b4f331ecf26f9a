package authz

// Role slugs wired in this repository's policy files. Integrators add
// their own.
const (
	RoleIntegration = "integration"
	RoleSalesOps    = "sales-ops"
	RoleAnonymous   = "anonymous"
)

// DomainGlobal is the domain for capability checks outside any tenant.
const DomainGlobal = "global"
