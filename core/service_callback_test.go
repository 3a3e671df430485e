package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestServiceCompleteCallback_SuccessActivatesIntegration(t *testing.T) {
	fixture := newCallbackFixture(t)
	state := fixture.freshState(t)

	result, err := fixture.service.CompleteCallback(context.Background(), fixture.request(state))
	if err != nil {
		t.Fatalf("complete callback: %v", err)
	}
	if result.ErrorCode != "" {
		t.Fatalf("expected success, got error code %q", result.ErrorCode)
	}
	if result.RedirectURL != "/integrations/connected" {
		t.Fatalf("unexpected success redirect: %q", result.RedirectURL)
	}

	stored, found, err := fixture.store.Find(context.Background(), testTenantID, testIntegrationID)
	if err != nil || !found {
		t.Fatalf("find integration: found=%v err=%v", found, err)
	}
	if stored.Status != IntegrationStatusActive {
		t.Fatalf("expected active status, got %s", stored.Status)
	}
	if stored.AccessToken != "access-token-1" || stored.RefreshToken != "refresh-token-1" {
		t.Fatalf("expected stored tokens, got %+v", stored)
	}

	entries := fixture.sink.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Outcome != CallbackOutcomeSuccess || entry.ErrorCode != "" {
		t.Fatalf("unexpected audit entry: %+v", entry)
	}
	if entry.EventType != CallbackEventType {
		t.Fatalf("unexpected event type: %q", entry.EventType)
	}
	if entry.IP != "203.0.113.7" || entry.UserAgent != "integration-test" {
		t.Fatalf("expected client metadata on audit entry: %+v", entry)
	}
	if entry.StateAgeMS < 0 {
		t.Fatalf("expected non-negative state age, got %d", entry.StateAgeMS)
	}
}

func TestServiceCompleteCallback_MalformedStateRejectsWithoutLookups(t *testing.T) {
	fixture := newCallbackFixture(t)

	result, err := fixture.service.CompleteCallback(context.Background(), fixture.request("@@not-a-state@@"))
	if err != nil {
		t.Fatalf("complete callback: %v", err)
	}
	if result.ErrorCode != CallbackErrorInvalidState {
		t.Fatalf("expected %s, got %q", CallbackErrorInvalidState, result.ErrorCode)
	}
	if !strings.Contains(result.RedirectURL, "error="+CallbackErrorInvalidState) {
		t.Fatalf("expected error redirect with code, got %q", result.RedirectURL)
	}
	if fixture.exchanger.Calls() != 0 {
		t.Fatalf("exchanger must not run for malformed state")
	}

	entries := fixture.sink.Entries()
	if len(entries) != 1 || entries[0].Outcome != CallbackOutcomeRejected {
		t.Fatalf("expected 1 rejected audit entry, got %+v", entries)
	}
	if len(entries[0].SecurityIssues) != 1 || entries[0].SecurityIssues[0] != SecurityIssueMalformedState {
		t.Fatalf("expected MALFORMED_STATE issue, got %v", entries[0].SecurityIssues)
	}
}

func TestServiceCompleteCallback_ExpiredState(t *testing.T) {
	fixture := newCallbackFixture(t)
	state := fixture.stateIssuedAt(t, time.Now().UTC().Add(-11*time.Minute))

	result, err := fixture.service.CompleteCallback(context.Background(), fixture.request(state))
	if err != nil {
		t.Fatalf("complete callback: %v", err)
	}
	if result.ErrorCode != CallbackErrorStateExpired {
		t.Fatalf("expected %s, got %q", CallbackErrorStateExpired, result.ErrorCode)
	}

	stored, _, _ := fixture.store.Find(context.Background(), testTenantID, testIntegrationID)
	if stored.Status != IntegrationStatusPending {
		t.Fatalf("expired state must leave the record pending, got %s", stored.Status)
	}
}

func TestServiceCompleteCallback_UntrustedHostIsAuditedBeforeRejection(t *testing.T) {
	fixture := newCallbackFixture(t)
	request := fixture.request(fixture.freshState(t))
	request.Host = "attacker.example.net"

	result, err := fixture.service.CompleteCallback(context.Background(), request)
	if err != nil {
		t.Fatalf("complete callback: %v", err)
	}
	if result.ErrorCode != CallbackErrorUntrustedHost {
		t.Fatalf("expected %s, got %q", CallbackErrorUntrustedHost, result.ErrorCode)
	}
	if fixture.exchanger.Calls() != 0 {
		t.Fatalf("exchanger must not run for untrusted host")
	}

	entries := fixture.sink.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected the rejection to be audited, got %d entries", len(entries))
	}
	entry := entries[0]
	if len(entry.SecurityIssues) != 1 || entry.SecurityIssues[0] != SecurityIssueUntrustedHost {
		t.Fatalf("expected UNTRUSTED_HOST issue, got %v", entry.SecurityIssues)
	}
	if entry.TenantID != testTenantID || entry.IntegrationID != testIntegrationID {
		t.Fatalf("audit entry must carry decoded claims: %+v", entry)
	}
}

func TestServiceCompleteCallback_MissingAndForeignIntegrationCollapse(t *testing.T) {
	fixture := newCallbackFixture(t)
	fixture.access.Revoke(testUserID, testTenantID)

	denied, err := fixture.service.CompleteCallback(context.Background(), fixture.request(fixture.freshState(t)))
	if err != nil {
		t.Fatalf("complete callback: %v", err)
	}

	fixture = newCallbackFixture(t)
	missingState := func() string {
		nonce, nonceErr := NewStateNonce()
		if nonceErr != nil {
			t.Fatalf("mint nonce: %v", nonceErr)
		}
		state, encodeErr := fixture.codec.Encode(StateClaims{
			TenantID:      testTenantID,
			IntegrationID: ObjectID("ffffffffffffffffffffffff"),
			UserID:        testUserID,
			IssuedAt:      time.Now().UTC(),
			Nonce:         nonce,
		})
		if encodeErr != nil {
			t.Fatalf("encode state: %v", encodeErr)
		}
		return state
	}()
	missing, err := fixture.service.CompleteCallback(context.Background(), fixture.request(missingState))
	if err != nil {
		t.Fatalf("complete callback: %v", err)
	}

	if denied.ErrorCode != CallbackErrorIntegrationNotFound || missing.ErrorCode != CallbackErrorIntegrationNotFound {
		t.Fatalf("expected both rejections to collapse to %s, got %q and %q",
			CallbackErrorIntegrationNotFound, denied.ErrorCode, missing.ErrorCode)
	}
}

func TestServiceCompleteCallback_ReplayAfterSuccessIsFlagged(t *testing.T) {
	fixture := newCallbackFixture(t)
	state := fixture.freshState(t)
	request := fixture.request(state)

	if _, err := fixture.service.CompleteCallback(context.Background(), request); err != nil {
		t.Fatalf("first callback: %v", err)
	}

	replay, err := fixture.service.CompleteCallback(context.Background(), request)
	if err != nil {
		t.Fatalf("replayed callback: %v", err)
	}
	if replay.ErrorCode != CallbackErrorAlreadyConfigured {
		t.Fatalf("expected %s on replay, got %q", CallbackErrorAlreadyConfigured, replay.ErrorCode)
	}
	if fixture.exchanger.Calls() != 1 {
		t.Fatalf("replay must not reach the exchanger, got %d calls", fixture.exchanger.Calls())
	}

	entries := fixture.sink.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(entries))
	}
	replayEntry := entries[1]
	if replayEntry.Outcome != CallbackOutcomeRejected {
		t.Fatalf("expected rejected replay entry, got %+v", replayEntry)
	}
	if len(replayEntry.SecurityIssues) != 1 || replayEntry.SecurityIssues[0] != SecurityIssueReplayDetected {
		t.Fatalf("expected REPLAY_ATTACK_DETECTED, got %v", replayEntry.SecurityIssues)
	}
}

func TestServiceCompleteCallback_ExchangeFailureMarksRecordError(t *testing.T) {
	fixture := newCallbackFixture(t)
	fixture.exchanger.err = errors.New("provider returned 502")
	state := fixture.freshState(t)

	result, err := fixture.service.CompleteCallback(context.Background(), fixture.request(state))
	if err != nil {
		t.Fatalf("complete callback: %v", err)
	}
	if result.ErrorCode != CallbackErrorProviderUnavailable {
		t.Fatalf("expected %s, got %q", CallbackErrorProviderUnavailable, result.ErrorCode)
	}

	stored, _, _ := fixture.store.Find(context.Background(), testTenantID, testIntegrationID)
	if stored.Status != IntegrationStatusError {
		t.Fatalf("failed exchange must mark the record error, got %s", stored.Status)
	}
	if stored.AccessToken != "" {
		t.Fatalf("failed exchange must never store tokens, got %q", stored.AccessToken)
	}
}

func TestServiceCompleteCallback_EmptyCodeNeverReachesProvider(t *testing.T) {
	fixture := newCallbackFixture(t)
	request := fixture.request(fixture.freshState(t))
	request.Code = ""

	result, err := fixture.service.CompleteCallback(context.Background(), request)
	if err != nil {
		t.Fatalf("complete callback: %v", err)
	}
	if result.ErrorCode != CallbackErrorProviderUnavailable {
		t.Fatalf("expected %s, got %q", CallbackErrorProviderUnavailable, result.ErrorCode)
	}
	if fixture.exchanger.Calls() != 0 {
		t.Fatalf("empty code must not reach the exchanger")
	}
}

func TestServiceCompleteCallback_ConcurrentCallbacksActivateExactlyOnce(t *testing.T) {
	fixture := newCallbackFixture(t)

	// Hold both exchanges in flight so each request passes the ownership
	// check before either commits.
	gate := &sync.WaitGroup{}
	gate.Add(2)
	fixture.exchanger.gate = gate

	state := fixture.freshState(t)
	results := make(chan CallbackResult, 2)
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			result, err := fixture.service.CompleteCallback(context.Background(), fixture.request(state))
			results <- result
			errs <- err
		}()
	}

	successes, conflicts := 0, 0
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("concurrent callback: %v", err)
		}
		switch result := <-results; result.ErrorCode {
		case "":
			successes++
		case CallbackErrorAlreadyConfigured:
			conflicts++
		default:
			t.Fatalf("unexpected error code under race: %q", result.ErrorCode)
		}
	}
	if successes != 1 || conflicts != 1 {
		t.Fatalf("expected exactly one winner, got %d successes and %d conflicts", successes, conflicts)
	}

	stored, _, _ := fixture.store.Find(context.Background(), testTenantID, testIntegrationID)
	if stored.Status != IntegrationStatusActive {
		t.Fatalf("expected exactly one activation, got status %s", stored.Status)
	}
}
