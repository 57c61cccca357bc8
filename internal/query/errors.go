package query

import (
	"errors"

	"github.com/rosterlabs/rosterwatch/internal/schema"
)

var (
	// ErrUnknownField is returned when a field reference does not resolve
	// against the schema registry.
	ErrUnknownField = schema.ErrUnknownField

	// ErrEmptyFieldSelection is returned when a spec selects no output fields.
	ErrEmptyFieldSelection = errors.New("no output fields selected")

	// ErrMissingOperand is returned when a binary-range operator lacks its
	// second value.
	ErrMissingOperand = errors.New("operator requires a second value")

	// ErrUnsupportedJoinPair is returned when a spec references tables with
	// no relation path between them.
	ErrUnsupportedJoinPair = errors.New("no join path between requested tables")

	// ErrUnknownOperator is returned when a condition carries an operator
	// string that is not in the operator table.
	ErrUnknownOperator = errors.New("unknown operator")
)
