package bookstorev1

import (
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorDomain — домен ErrorInfo в деталях статуса.
const ErrorDomain = "bookstore.v1"

// NewKindStatus строит статус с видом доменной ошибки в деталях (errdetails.ErrorInfo.Reason).
func NewKindStatus(code codes.Code, kind, message string) *status.Status {
	st := status.New(code, message)
	if kind == "" {
		return st
	}
	withDetails, err := st.WithDetails(&errdetails.ErrorInfo{Reason: kind, Domain: ErrorDomain})
	if err != nil {
		return st
	}
	return withDetails
}

// ErrorKindOf возвращает вид доменной ошибки из статуса или пустую строку.
func ErrorKindOf(err error) string {
	st, ok := status.FromError(err)
	if !ok {
		return ""
	}
	for _, detail := range st.Details() {
		if info, ok := detail.(*errdetails.ErrorInfo); ok && info.GetDomain() == ErrorDomain {
			return info.GetReason()
		}
	}
	return ""
}
