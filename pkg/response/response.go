package response

import (
	"errors"
	"net/http"
)

// Machine-readable error codes consumed by the client to branch UI
// messages. Never rename a shipped code.
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeDB                  = "DB_ERROR"
	CodeServer              = "SERVER_ERROR"
	CodeNotAuthenticated    = "NOT_AUTHENTICATED"
	CodeAccessTokenInvalid  = "ACCESS_TOKEN_EXPIRED_OR_INVALID"
	CodeUserFound           = "USER_FOUND"
	CodeUserNotFound        = "USER_NOT_FOUND"
	CodeEmailTaken          = "EMAIL_TAKEN"
	CodeWrongPassword       = "WRONG_PASSWORD"
	CodeCodeInvalid         = "CODE_INVALID"
	CodeOriginNotAllowed    = "ORIGIN_NOT_ALLOWED"
	CodeRefreshReused       = "REFRESH_TOKEN_REUSED"
	CodeSessionExpired      = "SESSION_EXPIRED"
	CodeCompanyNotFound     = "COMPANY_NOT_FOUND"
	CodeMembershipNotFound  = "MEMBERSHIP_NOT_FOUND"
	CodeStoreNotFound       = "STORE_NOT_FOUND"
	CodeInvitationInvalid   = "INVITATION_INVALID"
	CodeOnboardingIncomplet = "ONBOARDING_INCOMPLETE"
	CodeOnboardingCompleted = "ONBOARDING_COMPLETED"
	CodeInvalidStep         = "INVALID_STEP"
	CodeInvalidRange        = "INVALID_RANGE"
	CodePlanNotFound        = "PLAN_NOT_FOUND"
	CodePluginNotAllowed    = "PLUGIN_NOT_ALLOWED"
	CodePaymentRequired     = "ONBOARDING_PAYMENT_REQUIRED"
	CodePaymentFailed       = "PAYMENT_FAILED"
	CodeSubscriptionPending = "SUBSCRIPTION_NOT_RECONCILED"
	CodeRateLimited         = "RATE_LIMITED"
)

// Response is the uniform JSON envelope for every endpoint.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Code    string      `json:"code,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Success wraps data in a success envelope.
func Success(message string, data interface{}) Response {
	return Response{
		Success: true,
		Message: message,
		Data:    data,
	}
}

// Error builds a failure envelope with a stable machine code.
func Error(code, message string) Response {
	return Response{
		Success: false,
		Message: message,
		Code:    code,
	}
}

// AppError is a service-layer error carrying the HTTP status and machine
// code the handler should emit. Services return these; handlers translate.
type AppError struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// NewError builds an AppError.
func NewError(status int, code, message string) *AppError {
	return &AppError{Status: status, Code: code, Message: message}
}

// WrapDB wraps a store failure as a DB_ERROR 500. The failing table goes in
// the message for the log; the client sees only the code.
func WrapDB(table string, err error) *AppError {
	return &AppError{
		Status:  http.StatusInternalServerError,
		Code:    CodeDB,
		Message: "database operation failed on " + table,
		Err:     err,
	}
}

// FromError maps any error to the (status, envelope) pair for the HTTP
// boundary. Unknown errors become SERVER_ERROR with no detail leaked.
func FromError(err error) (int, Response) {
	var app *AppError
	if errors.As(err, &app) {
		return app.Status, Error(app.Code, app.Message)
	}
	return http.StatusInternalServerError, Error(CodeServer, "something went wrong")
}
