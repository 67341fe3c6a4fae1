package services

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain"
)

var (
	ErrUnknownEntityType  = domain.ErrUnknownEntityType
	ErrValidationFailed   = errors.New("validation failed")
	ErrUnsupportedFormat  = errors.New("unsupported format")
	ErrEmptyBatch         = errors.New("nothing to import")
	ErrInvalidDocument    = errors.New("invalid embedded document")
	ErrDeleteNotConfirmed = errors.New("delete not confirmed")
)

// reportedMessages is implemented by store errors that carry the text the
// remote API reported.
type reportedMessages interface {
	ReportedMessages() []string
}

// ErrorMessage extracts the human readable part of a store error, preferring
// the messages reported by the GraphQL API over transport errors.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var rm reportedMessages
	if stderrors.As(err, &rm) {
		if msgs := rm.ReportedMessages(); len(msgs) > 0 {
			return strings.Join(msgs, "; ")
		}
	}
	var list gqlerror.List
	if stderrors.As(err, &list) && len(list) > 0 {
		msgs := make([]string, 0, len(list))
		for _, e := range list {
			msgs = append(msgs, e.Message)
		}
		return strings.Join(msgs, "; ")
	}
	var gqlErr *gqlerror.Error
	if stderrors.As(err, &gqlErr) {
		return gqlErr.Message
	}
	return err.Error()
}

// rowError formats a row level failure. Rows are numbered from 1.
func rowError(row int, msg string) string {
	return fmt.Sprintf("Row %d: %s", row, msg)
}
