package log

// Common field names for structured logging
const (
	FieldComponent = "component"
	FieldError     = "error"
	FieldOperation = "operation"
	FieldTargetID  = "target_id"
	FieldEntity    = "entity"
	FieldAmount    = "amount"
	FieldBalance   = "balance"
	FieldCurrency  = "currency"
	FieldMethod    = "method"
	FieldEndpoint  = "endpoint"
	FieldStatus    = "status_code"
	FieldPending   = "pending"
)

// Components defines standard component names
const (
	ComponentApp = "app"
)
