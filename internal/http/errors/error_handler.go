package errors

import (
	"encoding/json"
	"fmt"
	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
	"net/http"
	"strings"
)

// ErrorHandler writes failure envelopes for one endpoint and logs them: 5xx
// at error level, everything else at debug.
type ErrorHandler struct {
	endpoint string
}

type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

type failure struct {
	Success  bool         `json:"success"`
	ErrorMsg string       `json:"error"`
	Fields   []FieldError `json:"fields,omitempty"`
}

func NewErrorHandler(endpoint string) *ErrorHandler {
	return &ErrorHandler{endpoint}
}

func (eh *ErrorHandler) WriteAndLogError(
	w http.ResponseWriter,
	msg string,
	err error,
	statusCode int,
	fields log.Fields,
) {
	logErr := eh.LogError(msg, err, statusCode, fields)
	eh.writeFailure(w, failure{ErrorMsg: logErr.Error()}, statusCode)
}

// LogError logs err under msg and returns the wrapped error, for endpoints
// that write their own failure body.
func (eh *ErrorHandler) LogError(msg string, err error, statusCode int, fields log.Fields) error {
	logErr := fmt.Errorf("%s: %w", msg, err)
	eh.log(logErr.Error(), statusCode, fields)
	return logErr
}

func (eh *ErrorHandler) WriteAndLogErrorMsg(
	w http.ResponseWriter,
	msg string,
	statusCode int,
	fields log.Fields,
) {
	eh.log(msg, statusCode, fields)
	eh.writeFailure(w, failure{ErrorMsg: msg}, statusCode)
}

func (eh *ErrorHandler) WriteAndLogValidationErrors(
	w http.ResponseWriter,
	err validator.ValidationErrors,
	fields log.Fields,
) {
	fieldErrors := make([]FieldError, 0, len(err))
	names := make([]string, 0, len(err))
	for _, fe := range err {
		fieldErrors = append(fieldErrors, FieldError{Field: fe.Field(), Rule: fe.Tag()})
		names = append(names, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}
	msg := "validation error: invalid " + strings.Join(names, ", ")
	eh.log(msg, http.StatusBadRequest, fields)
	eh.writeFailure(w, failure{ErrorMsg: msg, Fields: fieldErrors}, http.StatusBadRequest)
}

func (eh *ErrorHandler) log(msg string, statusCode int, fields log.Fields) {
	if fields == nil {
		fields = log.Fields{}
	}
	fields["endpoint"] = eh.endpoint
	fields["status"] = statusCode
	if statusCode >= 500 {
		log.WithFields(fields).Error(msg)
	} else {
		log.WithFields(fields).Debug(msg)
	}
}

func (eh *ErrorHandler) writeFailure(w http.ResponseWriter, body failure, statusCode int) {
	body.Success = false
	resp, _ := json.Marshal(body)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(resp)
}
