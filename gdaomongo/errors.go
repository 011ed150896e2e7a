package gdaomongo

import (
	"strings"

	"github.com/lemmego/gdao"
	"go.mongodb.org/mongo-driver/mongo"
)

// =====================================
// Error Conversion
// =====================================

// convertMongoError converts MongoDB errors to gdao errors
func convertMongoError(err error) error {
	if err == nil {
		return nil
	}

	if err == mongo.ErrNoDocuments {
		return gdao.NewErrorWithCause(gdao.ErrorTypeNotFound, "document not found", err)
	}

	if writeErr, ok := err.(mongo.WriteException); ok {
		for _, we := range writeErr.WriteErrors {
			if we.Code == 11000 || we.Code == 11001 {
				return gdao.NewErrorWithCause(gdao.ErrorTypeDuplicate, "duplicate key violation", err)
			}
		}
	}
	if cmdErr, ok := err.(mongo.CommandError); ok {
		if cmdErr.Code == 11000 || cmdErr.Code == 11001 {
			return gdao.NewErrorWithCause(gdao.ErrorTypeDuplicate, "duplicate key violation", err)
		}
		if cmdErr.Code == 59 { // CommandNotFound
			return gdao.NewErrorWithCause(gdao.ErrorTypeUnsupported, "unknown database command", err)
		}
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "duplicate key"):
		return gdao.NewErrorWithCause(gdao.ErrorTypeDuplicate, "duplicate key violation", err)
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline"):
		return gdao.NewErrorWithCause(gdao.ErrorTypeTimeout, "operation timeout", err)
	case strings.Contains(errStr, "connection") || strings.Contains(errStr, "server selection"):
		return gdao.NewErrorWithCause(gdao.ErrorTypeConnection, "connection error", err)
	default:
		return gdao.NewErrorWithCause(gdao.ErrorTypeBackend, "database operation failed", err)
	}
}
