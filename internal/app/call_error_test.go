package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestCallErrorMetaFromDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := annotateCallError(ctx, "contract.active_doctors", context.DeadlineExceeded)
	meta := callErrorMeta(err)
	if meta == nil {
		t.Fatalf("expected metadata for annotated timeout")
	}
	if meta["phase"] != "contract.active_doctors" || meta["kind"] != "timeout" {
		t.Fatalf("unexpected meta: %+v", meta)
	}
	if _, ok := meta["deadline"]; !ok {
		t.Fatalf("expected deadline in metadata: %+v", meta)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("annotated error must still match the deadline")
	}
}

func TestCallErrorPassesContractFailuresThrough(t *testing.T) {
	reverted := errors.New("execution reverted: Doctor not found")
	if got := annotateCallError(context.Background(), "contract.doctor", reverted); got != reverted {
		t.Fatalf("expected the original error, got %v", got)
	}
	if meta := callErrorMeta(context.Canceled); meta != nil {
		t.Fatalf("did not expect metadata for unannotated error: %+v", meta)
	}
	if err := annotateCallError(context.Background(), "contract.platform", nil); err != nil {
		t.Fatalf("nil stays nil, got %v", err)
	}
}

func TestCallErrorMessages(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := annotateCallError(ctx, "contract.appointment", context.DeadlineExceeded)
	if !strings.Contains(err.Error(), "contract.appointment timed out") {
		t.Fatalf("expected phase-aware message, got: %q", err.Error())
	}
	err = annotateCallError(context.Background(), "contract.appointment", context.DeadlineExceeded)
	if got := err.Error(); got != "contract.appointment timed out: context deadline exceeded" {
		t.Fatalf("unexpected message without deadline: %q", got)
	}
	err = annotateCallError(context.Background(), "contract.doctor", context.Canceled)
	if meta := callErrorMeta(err); meta["kind"] != "canceled" {
		t.Fatalf("expected canceled kind, got %+v", meta)
	}
}
