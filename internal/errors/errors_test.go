package errors

import (
	"errors"
	"testing"
)

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		kind string
		want Class
	}{
		{KindTooLarge, ClassValidation},
		{KindBlobIO, ClassTransient},
		{KindUnparseable, ClassPermanent},
		{KindDeadlineExceeded, ClassTimeout},
		{KindExhaustedRetries, ClassExhaustion},
		{"bogus", ClassInternal},
	}
	for _, c := range cases {
		if got := ClassOf(c.kind); got != c.want {
			t.Errorf("ClassOf(%q) = %v, want %v", c.kind, got, c.want)
		}
	}
}

func TestWrapUnwrap(t *testing.T) {
	underlying := errors.New("disk full")
	err := Wrap(KindBlobIO, underlying).WithStage("extract_text")

	if !errors.Is(err, underlying) {
		t.Fatalf("expected Wrap to unwrap to underlying error")
	}
	if err.Stage != "extract_text" {
		t.Errorf("Stage = %q, want extract_text", err.Stage)
	}
	if !err.Retryable() {
		t.Errorf("expected blob_io error to be retryable")
	}

	wantMsg := "blob_io at stage extract_text: disk full"
	if err.Error() != wantMsg {
		t.Errorf("Error() = %q, want %q", err.Error(), wantMsg)
	}
}

func TestPermanentNotRetryable(t *testing.T) {
	err := New(KindUnparseable, "no text layer")
	if err.Retryable() {
		t.Errorf("expected permanent error to not be retryable")
	}
}
