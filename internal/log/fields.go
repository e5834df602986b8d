package log

// Common field names for structured logging
const (
	FieldComponent    = "component"
	FieldUserID       = "user_id"
	FieldToken        = "idempotency_token"
	FieldKind         = "kind"
	FieldAmount       = "amount"
	FieldCategory     = "category"
	FieldCounterparty = "counterparty"
	FieldProvider     = "provider"
	FieldAttempt      = "attempt"
	FieldDuration     = "duration_ms"
	FieldError        = "error"
	FieldEvent        = "event"
)

// Components defines standard component names
const (
	ComponentApp      = "app"
	ComponentHTTP     = "http"
	ComponentResolver = "resolver"
	ComponentLedger   = "ledger"
	ComponentWorker   = "worker"
	ComponentBackend  = "backend"
)
