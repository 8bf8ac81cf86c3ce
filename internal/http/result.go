package httpapi

// Result is the response envelope of every JSON endpoint.
//   - code: ResultSuccess on success, a specific failure code otherwise
//   - type: "success" | "error"
//   - message: human readable, or a stable failure key
//   - result: payload
type Result[T any] struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Result  T      `json:"result"`
}

const (
	ResultSuccess = 2000
	ResultError   = -1

	// Failure codes the client must tell apart: no such clinic is a
	// different remediation from access denied.
	ResultAuthenticationRequired = 40101
	ResultInvalidCredentials     = 40102
	ResultPermissionDenied       = 40301
	ResultTenantNotFound         = 40401
	ResultTenantInactive         = 40402
)

// Stable failure keys used as Message for the codes above.
const (
	MsgAuthenticationRequired = "authentication_required"
	MsgInvalidCredentials     = "invalid_credentials"
	MsgPermissionDenied       = "permission_denied"
	MsgTenantNotFound         = "tenant_not_found"
	MsgTenantInactive         = "tenant_inactive"
)

func Ok[T any](result T) Result[T] {
	return Result[T]{Code: ResultSuccess, Type: "success", Message: "ok", Result: result}
}

func Fail(message string) Result[any] {
	return Result[any]{Code: ResultError, Type: "error", Message: message, Result: nil}
}

func FailCode(code int, message string) Result[any] {
	return Result[any]{Code: code, Type: "error", Message: message, Result: nil}
}
