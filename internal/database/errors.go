package database

import (
	"errors"

	"github.com/lib/pq"
)

// uniqueViolation is the PostgreSQL error code for unique constraint violations
const uniqueViolation = pq.ErrorCode("23505")

// IsUniqueViolation reports whether err is a PostgreSQL unique
// constraint violation. The trip materializer and the booking reference
// generator need to tell a lost race apart from a real failure.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	return false
}
