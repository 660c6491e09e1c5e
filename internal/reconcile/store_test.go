package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/novasend/novasend-platform/internal/events"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	return NewStore(mock, events.NewProcessedStore(mock)), mock
}

func envelope(t *testing.T, evt events.CanonicalEvent) events.Envelope {
	t.Helper()
	env, err := events.NewEnvelope("campaign", evt)
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	return env
}

func expectDedupe(mock pgxmock.PgxPoolIface, env events.Envelope, fresh bool) {
	rows := int64(0)
	if fresh {
		rows = 1
	}
	mock.ExpectExec("INSERT INTO processed_events").
		WithArgs(consumerSource, env.EventID).
		WillReturnResult(pgxmock.NewResult("INSERT", rows))
}

func TestApplyClaimedMovesCounters(t *testing.T) {
	store, mock := newMockStore(t)
	campaignID := uuid.New()
	env := envelope(t, events.RecipientClaimedV1{CampaignID: campaignID, Phone: "+15550001", ClaimedAt: time.Now()})

	mock.ExpectBegin()
	expectDedupe(mock, env, true)
	mock.ExpectExec("UPDATE campaign_details").
		WithArgs(campaignID, "+15550001").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE campaigns").
		WithArgs(campaignID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	res, err := store.Apply(context.Background(), env)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !res.Applied || res.Completed {
		t.Fatalf("unexpected result %+v", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestApplyDuplicateIsNoOp(t *testing.T) {
	store, mock := newMockStore(t)
	env := envelope(t, events.MessageSentV1{CampaignID: uuid.New(), Phone: "+15550001", SentAt: time.Now()})

	mock.ExpectBegin()
	expectDedupe(mock, env, false)
	mock.ExpectRollback()

	res, err := store.Apply(context.Background(), env)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Applied {
		t.Fatal("duplicate must not apply")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestApplySentCompletesCampaign(t *testing.T) {
	store, mock := newMockStore(t)
	campaignID := uuid.New()
	env := envelope(t, events.MessageSentV1{
		CampaignID: campaignID, Phone: "+15550001",
		ProviderMessageID: "msg_1", SentAt: time.Now(),
	})

	mock.ExpectBegin()
	expectDedupe(mock, env, true)
	// terminal transition from processing
	mock.ExpectExec("UPDATE campaign_details").
		WithArgs(campaignID, "+15550001", "msg_1", pgxmock.AnyArg(), "processing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE campaigns SET successful").
		WithArgs(campaignID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	// last recipient: completion fires
	mock.ExpectExec("UPDATE campaigns").
		WithArgs(campaignID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	res, err := store.Apply(context.Background(), env)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !res.Applied || !res.Completed {
		t.Fatalf("expected applied and completed, got %+v", res)
	}
	if res.CampaignID != campaignID {
		t.Errorf("campaign id = %s", res.CampaignID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestApplyFailedFromPending(t *testing.T) {
	store, mock := newMockStore(t)
	campaignID := uuid.New()
	env := envelope(t, events.MessageFailedV1{
		CampaignID: campaignID, Phone: "+15550002",
		ErrorCode: "campaign_cancelled", ErrorMessage: "campaign no longer active",
		FailedAt: time.Now(),
	})

	mock.ExpectBegin()
	expectDedupe(mock, env, true)
	// not processing, swept straight from pending
	mock.ExpectExec("UPDATE campaign_details").
		WithArgs(campaignID, "+15550002", "campaign_cancelled", "campaign no longer active", "processing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec("UPDATE campaign_details").
		WithArgs(campaignID, "+15550002", "campaign_cancelled", "campaign no longer active", "pending").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE campaigns SET failed").
		WithArgs(campaignID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE campaigns").
		WithArgs(campaignID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectCommit()

	res, err := store.Apply(context.Background(), env)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !res.Applied || res.Completed {
		t.Fatalf("unexpected result %+v", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestApplyStaleTerminalLeavesCountersAlone(t *testing.T) {
	store, mock := newMockStore(t)
	campaignID := uuid.New()
	env := envelope(t, events.MessageSentV1{CampaignID: campaignID, Phone: "+15550003", SentAt: time.Now()})

	mock.ExpectBegin()
	expectDedupe(mock, env, true)
	mock.ExpectExec("UPDATE campaign_details").
		WithArgs(campaignID, "+15550003", "", pgxmock.AnyArg(), "processing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec("UPDATE campaign_details").
		WithArgs(campaignID, "+15550003", "", pgxmock.AnyArg(), "pending").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectCommit()

	res, err := store.Apply(context.Background(), env)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Applied {
		t.Fatal("already-terminal detail must not apply")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestApplyRequeuedMovesCounters(t *testing.T) {
	store, mock := newMockStore(t)
	campaignID := uuid.New()
	env := envelope(t, events.RecipientRequeuedV1{
		CampaignID: campaignID, Phone: "+15550001",
		Reason: "lease_expired", RequeuedAt: time.Now(),
	})

	mock.ExpectBegin()
	expectDedupe(mock, env, true)
	mock.ExpectExec("UPDATE campaign_details").
		WithArgs(campaignID, "+15550001").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`SET processing = processing - 1, pending = pending \+ 1`).
		WithArgs(campaignID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	res, err := store.Apply(context.Background(), env)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !res.Applied || res.Completed {
		t.Fatalf("unexpected result %+v", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestApplyRequeuedStaleDetailLeavesCountersAlone(t *testing.T) {
	store, mock := newMockStore(t)
	campaignID := uuid.New()
	env := envelope(t, events.RecipientRequeuedV1{
		CampaignID: campaignID, Phone: "+15550001",
		Reason: "send_timeout", RequeuedAt: time.Now(),
	})

	mock.ExpectBegin()
	expectDedupe(mock, env, true)
	// detail already moved on, no counter may change
	mock.ExpectExec("UPDATE campaign_details").
		WithArgs(campaignID, "+15550001").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectCommit()

	res, err := store.Apply(context.Background(), env)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Applied {
		t.Fatal("stale requeue must not apply")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func applyOK(t *testing.T, store *Store, env events.Envelope) Result {
	t.Helper()
	res, err := store.Apply(context.Background(), env)
	if err != nil {
		t.Fatalf("apply %s: %v", env.EventType, err)
	}
	return res
}

func expectClaimed(mock pgxmock.PgxPoolIface, env events.Envelope, campaignID uuid.UUID, phone string) {
	mock.ExpectBegin()
	expectDedupe(mock, env, true)
	mock.ExpectExec("UPDATE campaign_details").
		WithArgs(campaignID, phone).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`SET pending = pending - 1, processing = processing \+ 1`).
		WithArgs(campaignID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()
}

// TestApplyOutcomeSequenceReachesExactTallies drives a full campaign worth
// of outcome events through Apply: one recipient times out and succeeds on
// the second attempt, one is permanently rejected, one sends immediately.
// Starting from pending=3 the counter statements net out to successful=2,
// failed=1, pending=0, processing=0, and completion fires only on the last
// terminal event.
func TestApplyOutcomeSequenceReachesExactTallies(t *testing.T) {
	store, mock := newMockStore(t)
	campaignID := uuid.New()
	retried, rejected, quick := "+15550001", "+15550002", "+15550003"
	now := time.Now()

	// first attempt on the retried recipient is claimed, then times out
	claimed1 := envelope(t, events.RecipientClaimedV1{CampaignID: campaignID, Phone: retried, ClaimedAt: now})
	expectClaimed(mock, claimed1, campaignID, retried)

	requeued := envelope(t, events.RecipientRequeuedV1{CampaignID: campaignID, Phone: retried, Reason: "send_timeout", RequeuedAt: now})
	mock.ExpectBegin()
	expectDedupe(mock, requeued, true)
	mock.ExpectExec("UPDATE campaign_details").
		WithArgs(campaignID, retried).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`SET processing = processing - 1, pending = pending \+ 1`).
		WithArgs(campaignID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	// the rejected recipient fails terminally on its first attempt
	claimed2 := envelope(t, events.RecipientClaimedV1{CampaignID: campaignID, Phone: rejected, ClaimedAt: now})
	expectClaimed(mock, claimed2, campaignID, rejected)

	failed := envelope(t, events.MessageFailedV1{
		CampaignID: campaignID, Phone: rejected,
		ErrorCode: "invalid_recipient", ErrorMessage: "number unreachable", FailedAt: now,
	})
	mock.ExpectBegin()
	expectDedupe(mock, failed, true)
	mock.ExpectExec("UPDATE campaign_details").
		WithArgs(campaignID, rejected, "invalid_recipient", "number unreachable", "processing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`SET failed = failed \+ 1, processing = processing - 1`).
		WithArgs(campaignID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE campaigns").
		WithArgs(campaignID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectCommit()

	// the quick recipient sends on the first try
	claimed3 := envelope(t, events.RecipientClaimedV1{CampaignID: campaignID, Phone: quick, ClaimedAt: now})
	expectClaimed(mock, claimed3, campaignID, quick)

	sent1 := envelope(t, events.MessageSentV1{CampaignID: campaignID, Phone: quick, ProviderMessageID: "msg_quick", SentAt: now})
	mock.ExpectBegin()
	expectDedupe(mock, sent1, true)
	mock.ExpectExec("UPDATE campaign_details").
		WithArgs(campaignID, quick, "msg_quick", pgxmock.AnyArg(), "processing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`SET successful = successful \+ 1, processing = processing - 1`).
		WithArgs(campaignID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE campaigns").
		WithArgs(campaignID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectCommit()

	// second attempt on the retried recipient succeeds and finishes the run
	claimed4 := envelope(t, events.RecipientClaimedV1{CampaignID: campaignID, Phone: retried, ClaimedAt: now})
	expectClaimed(mock, claimed4, campaignID, retried)

	sent2 := envelope(t, events.MessageSentV1{CampaignID: campaignID, Phone: retried, ProviderMessageID: "msg_retry", SentAt: now})
	mock.ExpectBegin()
	expectDedupe(mock, sent2, true)
	mock.ExpectExec("UPDATE campaign_details").
		WithArgs(campaignID, retried, "msg_retry", pgxmock.AnyArg(), "processing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`SET successful = successful \+ 1, processing = processing - 1`).
		WithArgs(campaignID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`WHERE id = \$1 AND pending = 0 AND processing = 0`).
		WithArgs(campaignID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	sequence := []events.Envelope{claimed1, requeued, claimed2, failed, claimed3, sent1, claimed4, sent2}
	for i, env := range sequence {
		res := applyOK(t, store, env)
		if !res.Applied {
			t.Fatalf("event %d (%s) did not apply", i, env.EventType)
		}
		wantCompleted := i == len(sequence)-1
		if res.Completed != wantCompleted {
			t.Fatalf("event %d (%s): completed = %v", i, env.EventType, res.Completed)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestApplyAbortedFailsCampaign(t *testing.T) {
	store, mock := newMockStore(t)
	campaignID := uuid.New()
	env := envelope(t, events.CampaignAbortedV1{CampaignID: campaignID, Reason: "channel_revoked", AbortedAt: time.Now()})

	mock.ExpectBegin()
	expectDedupe(mock, env, true)
	mock.ExpectExec("UPDATE campaigns").
		WithArgs(campaignID, "channel_revoked").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	res, err := store.Apply(context.Background(), env)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !res.Applied {
		t.Fatal("abort should apply")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}
