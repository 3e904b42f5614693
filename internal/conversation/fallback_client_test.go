package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/abdi2332/calender-app/pkg/logging"
)

func TestFallbackClientPrimarySucceeds(t *testing.T) {
	primary := &stubLLMClient{text: "from primary"}
	fallback := &stubLLMClient{text: "from fallback"}
	client := NewFallbackLLMClient(primary, fallback, logging.Default())

	resp, err := client.Complete(context.Background(), LLMRequest{})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if resp.Text != "from primary" {
		t.Errorf("expected primary reply, got %q", resp.Text)
	}
}

func TestFallbackClientUsesFallbackOnPrimaryFailure(t *testing.T) {
	primary := &stubLLMClient{err: errors.New("boom")}
	fallback := &stubLLMClient{text: "from fallback"}
	client := NewFallbackLLMClient(primary, fallback, logging.Default())

	resp, err := client.Complete(context.Background(), LLMRequest{})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if resp.Text != "from fallback" {
		t.Errorf("expected fallback reply, got %q", resp.Text)
	}
}

func TestFallbackClientNoFallbackReturnsPrimaryError(t *testing.T) {
	primaryErr := errors.New("boom")
	client := NewFallbackLLMClient(&stubLLMClient{err: primaryErr}, nil, logging.Default())

	if _, err := client.Complete(context.Background(), LLMRequest{}); !errors.Is(err, primaryErr) {
		t.Fatalf("expected primary error, got %v", err)
	}
}

func TestFallbackClientBothFailReturnsFallbackError(t *testing.T) {
	fallbackErr := errors.New("also down")
	client := NewFallbackLLMClient(
		&stubLLMClient{err: errors.New("down")},
		&stubLLMClient{err: fallbackErr},
		logging.Default(),
	)

	if _, err := client.Complete(context.Background(), LLMRequest{}); !errors.Is(err, fallbackErr) {
		t.Fatalf("expected fallback error, got %v", err)
	}
}
