package chat

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewSendAppendsOptimisticPair(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	send := NewSend("how do code reviews work?", now)

	if send.Phase != PhaseSending {
		t.Errorf("Expected phase sending, got %s", send.Phase)
	}
	if send.User.UserMessage != "how do code reviews work?" {
		t.Errorf("Unexpected user message: %q", send.User.UserMessage)
	}
	if !send.User.ID.IsOptimistic() || !send.Assistant.ID.IsOptimistic() {
		t.Error("Expected both entries to carry optimistic IDs")
	}
	if send.User.ID.String() == send.Assistant.ID.String() {
		t.Errorf("Expected distinct IDs, both are %s", send.User.ID)
	}
	if !send.Assistant.Streaming {
		t.Error("Expected assistant placeholder to be streaming")
	}
	if send.Assistant.BotResponse != "" {
		t.Errorf("Expected empty placeholder, got %q", send.Assistant.BotResponse)
	}
}

func TestApplyConcatenatesTokensInArrivalOrder(t *testing.T) {
	send := NewSend("hi", time.Now())

	// Arrival order is authoritative even when fragments would read
	// differently in another order.
	for _, tok := range []string{"llo", "He"} {
		if fx := send.Apply(Event{Kind: EventToken, Token: tok}); fx.Finished {
			t.Fatal("Token event must not finish the send")
		}
	}

	if send.Assistant.BotResponse != "lloHe" {
		t.Errorf("Expected %q, got %q", "lloHe", send.Assistant.BotResponse)
	}
	if send.Phase != PhaseReceiving {
		t.Errorf("Expected phase receiving, got %s", send.Phase)
	}
	if !send.Assistant.Streaming {
		t.Error("Placeholder must keep streaming until a terminal event")
	}
}

func TestApplyCompleteFinalizesWithAward(t *testing.T) {
	send := NewSend("hi", time.Now())
	send.Apply(Event{Kind: EventToken, Token: "Hello"})

	fx := send.Apply(Event{Kind: EventComplete, PointsEarned: 10, MessageID: "msg-42"})

	if !fx.Finished || !fx.CloseStream {
		t.Errorf("Expected finished+close effects, got %+v", fx)
	}
	if fx.AwardPoints != 10 {
		t.Errorf("Expected award of 10, got %d", fx.AwardPoints)
	}
	if !fx.BumpMessageCount {
		t.Error("Expected message count bump on completion")
	}
	if send.Phase != PhaseCompleted {
		t.Errorf("Expected phase completed, got %s", send.Phase)
	}
	if send.Assistant.Streaming {
		t.Error("Expected placeholder to stop streaming")
	}
	if send.Assistant.PointsEarned != 10 {
		t.Errorf("Expected placeholder points 10, got %d", send.Assistant.PointsEarned)
	}
	if send.MessageID != "msg-42" {
		t.Errorf("Expected server message id msg-42, got %q", send.MessageID)
	}
	if send.Assistant.ID.IsOptimistic() != true {
		t.Error("Completion must not rewrite the optimistic entry ID")
	}
}

func TestApplyErrorSubstitutesFallbackOnlyWhenEmpty(t *testing.T) {
	streamErr := errors.New("connection reset")

	t.Run("empty placeholder gets fallback", func(t *testing.T) {
		send := NewSend("hi", time.Now())
		fx := send.Apply(Event{Kind: EventError, Err: streamErr})

		if !fx.Finished || !fx.CloseStream {
			t.Errorf("Expected finished+close effects, got %+v", fx)
		}
		if fx.AwardPoints != 0 || fx.BumpMessageCount {
			t.Errorf("Failure must not award points or bump counts, got %+v", fx)
		}
		if send.Assistant.BotResponse != FallbackResponse {
			t.Errorf("Expected fallback text, got %q", send.Assistant.BotResponse)
		}
		if send.Phase != PhaseFailed {
			t.Errorf("Expected phase failed, got %s", send.Phase)
		}
	})

	t.Run("partial text is preserved", func(t *testing.T) {
		send := NewSend("hi", time.Now())
		send.Apply(Event{Kind: EventToken, Token: "Partial"})
		send.Apply(Event{Kind: EventError, Err: streamErr})

		if send.Assistant.BotResponse != "Partial" {
			t.Errorf("Expected partial text preserved, got %q", send.Assistant.BotResponse)
		}
		if send.Assistant.Streaming {
			t.Error("Expected placeholder to stop streaming")
		}
	})
}

func TestApplyCancellationSkipsFallback(t *testing.T) {
	send := NewSend("hi", time.Now())
	fx := send.Apply(Event{Kind: EventError, Err: context.Canceled})

	if !fx.Finished {
		t.Error("Cancellation must still finish the send")
	}
	if send.Assistant.BotResponse != "" {
		t.Errorf("Cancellation must not substitute the fallback, got %q", send.Assistant.BotResponse)
	}
	if send.Phase != PhaseFailed {
		t.Errorf("Expected phase failed, got %s", send.Phase)
	}
}

func TestApplyIgnoresEventsAfterTerminal(t *testing.T) {
	send := NewSend("hi", time.Now())
	send.Apply(Event{Kind: EventToken, Token: "Hello"})
	send.Apply(Event{Kind: EventComplete, PointsEarned: 10, MessageID: "msg-1"})

	fx := send.Apply(Event{Kind: EventToken, Token: " world"})
	if fx != (Effects{}) {
		t.Errorf("Post-terminal event must be a no-op, got %+v", fx)
	}
	if send.Assistant.BotResponse != "Hello" {
		t.Errorf("Post-terminal token must not change text, got %q", send.Assistant.BotResponse)
	}

	fx = send.Apply(Event{Kind: EventError, Err: errors.New("late")})
	if fx != (Effects{}) || send.Phase != PhaseCompleted {
		t.Errorf("Late error must not flip a completed send, phase=%s", send.Phase)
	}
}
