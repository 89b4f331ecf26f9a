// Package types holds the opportunity object's field vocabulary. The
// framework keeps records schemaless; these constants are the module's
// agreement about which field keys mean what.
package types

const ObjectType = "Opportunity"

const (
	FieldName         = "name"
	FieldStageName    = "stage_name"
	FieldType         = "type"
	FieldAccountID    = "account_id"
	FieldAmountLocked = "amount_locked"
)

// DefaultStageName is stamped onto new opportunities created without an
// explicit stage.
const DefaultStageName = "Prospecting"

// ExistingBusinessPrefix marks opportunity types that extend business
// with a known account and therefore require an account reference.
const ExistingBusinessPrefix = "Existing"
