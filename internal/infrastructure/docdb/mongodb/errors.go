package mongodb

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/x/mongo/driver/topology"

	"github.com/unifiedui/docdb-gateway/internal/core/docdb"
)

// Server error codes that mean the node went away rather than that the query
// was wrong.
var nodeGoneCodes = map[int32]bool{
	91:    true, // ShutdownInProgress
	189:   true, // PrimarySteppedDown
	10107: true, // NotWritablePrimary
	11600: true, // InterruptedAtShutdown
	11602: true, // InterruptedDueToReplStateChange
	13435: true, // NotPrimaryNoSecondaryOk
	13436: true, // NotPrimaryOrSecondary
}

// Server error codes for credentials and permissions. The query is fine; the
// gateway's configuration is not.
var authCodes = map[int32]bool{
	13: true, // Unauthorized
	18: true, // AuthenticationFailed
}

const codeMaxTimeMSExpired = 50

// classifyError wraps a driver error into a docdb.BackendError.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	be := &docdb.BackendError{Class: docdb.ClassProtocol, Message: err.Error(), Err: err}

	var cmdErr mongo.CommandError
	hasCmdErr := errors.As(err, &cmdErr)
	if hasCmdErr {
		be.Code = cmdErr.Code
		be.Message = cmdErr.Message
	}

	var selErr topology.ServerSelectionError

	switch {
	case errors.Is(err, context.Canceled):
		be.Class = docdb.ClassCancelled
	// a deadline hit mid-read comes back labelled NetworkError
	case errors.Is(err, context.DeadlineExceeded), mongo.IsTimeout(err):
		be.Class = docdb.ClassTimeout
	case hasCmdErr && cmdErr.Code == codeMaxTimeMSExpired:
		be.Class = docdb.ClassTimeout
	case errors.As(err, &selErr), errors.Is(err, mongo.ErrClientDisconnected), mongo.IsNetworkError(err):
		be.Class = docdb.ClassNetwork
	case hasCmdErr && nodeGoneCodes[cmdErr.Code]:
		be.Class = docdb.ClassNetwork
	case hasCmdErr && authCodes[cmdErr.Code]:
		be.Class = docdb.ClassProtocol
	case hasCmdErr:
		be.Class = docdb.ClassQueryRejected
	}

	return be
}
