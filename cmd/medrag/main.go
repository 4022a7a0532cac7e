// Medrag answers questions grounded in clinical notes or PubMed abstracts.
//
// Usage:
//
//	# Ask about a single note
//	medrag clinical --note visit.txt --query "Why was the patient given antibiotics?"
//
//	# Ask PubMed
//	medrag literature --query "statin myopathy" --email you@example.org
//
//	# Long-running surfaces
//	medrag serve | medrag mcp | medrag worker
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fyrsmithlabs/medrag/internal/pipeline"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// Exit codes.
const (
	exitOK          = 0
	exitFailure     = 1
	exitInvalid     = 2
	exitAuth        = 3
	exitRateLimited = 4
	exitUnavailable = 5
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	stop()
	os.Exit(exitCode(err))
}

// errSuiteFailed marks an eval run with failing cases.
var errSuiteFailed = errors.New("eval suite failed")

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	switch pipeline.Classify(err) {
	case pipeline.KindInvalidRequest, pipeline.KindNotFound,
		pipeline.KindUnsupportedFormat, pipeline.KindMalformedRecord:
		return exitInvalid
	case pipeline.KindAuthentication:
		return exitAuth
	case pipeline.KindRateLimited:
		return exitRateLimited
	case pipeline.KindUnavailable:
		return exitUnavailable
	}
	return exitFailure
}
