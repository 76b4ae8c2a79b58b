package soagw

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrorResponse is a response type for operations that report failures as
// data rather than faults.
type ErrorResponse struct {
	ErrorCode    string `xsd:"order:1;maxLength:10;minOccurs:0"`
	ErrorMessage string `xsd:"order:2;maxLength:1000"`
}

const (
	maxErrorCode    = 10
	maxErrorMessage = 1000
)

// NewErrorResponse returns an ErrorResponse with the given code and message.
// Both are truncated to the lengths the schema allows.
func NewErrorResponse(code, message string) *ErrorResponse {
	return &ErrorResponse{
		ErrorCode:    truncate(code, maxErrorCode),
		ErrorMessage: truncate(message, maxErrorMessage),
	}
}

// ErrorResponseFrom describes err. Postgres errors report their SQLSTATE;
// errors raised by application code in the database (class P0) report only
// their message. Every other error has code "0".
func ErrorResponseFrom(err error) *ErrorResponse {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return NewErrorResponse("0", err.Error())
	}
	if strings.HasPrefix(pgErr.Code, "P0") {
		return NewErrorResponse(pgErr.Code, strings.TrimSpace(pgErr.Message))
	}
	parts := []string{pgErr.Message}
	for _, line := range strings.Split(pgErr.Detail, "\n") {
		if line = cleanLine(line); line != "" {
			parts = append(parts, line)
		}
	}
	return NewErrorResponse(pgErr.Code, strings.Join(parts, " "))
}

// cleanLine drops a "LABEL:" prefix such as "DETAIL:" from a server line.
func cleanLine(line string) string {
	if label, rest, ok := strings.Cut(line, ":"); ok && label != "" && strings.ToUpper(label) == label && !strings.Contains(label, " ") {
		line = rest
	}
	return strings.TrimSpace(line)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
