package command

import (
	"context"
	"errors"
	"testing"

	gocmd "github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-integrations/core"
)

type stubCallbackService struct {
	initiateFn func(ctx context.Context, req core.InitiateRequest) (core.InitiateResponse, error)
	completeFn func(ctx context.Context, req core.CallbackRequest) (core.CallbackResult, error)
	sweepFn    func(ctx context.Context) (int, error)
}

func (s stubCallbackService) InitiateAuthorization(ctx context.Context, req core.InitiateRequest) (core.InitiateResponse, error) {
	if s.initiateFn == nil {
		return core.InitiateResponse{}, errors.New("initiate not stubbed")
	}
	return s.initiateFn(ctx, req)
}

func (s stubCallbackService) CompleteCallback(ctx context.Context, req core.CallbackRequest) (core.CallbackResult, error) {
	if s.completeFn == nil {
		return core.CallbackResult{}, errors.New("complete not stubbed")
	}
	return s.completeFn(ctx, req)
}

func (s stubCallbackService) SweepStalePending(ctx context.Context) (int, error) {
	if s.sweepFn == nil {
		return 0, errors.New("sweep not stubbed")
	}
	return s.sweepFn(ctx)
}

func TestInitiateAuthorizationCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	expected := core.InitiateResponse{
		AuthorizationURL: "https://accounts.example.com/o/oauth2/auth?state=st",
		State:            "st",
	}
	called := false

	svc := stubCallbackService{
		initiateFn: func(_ context.Context, req core.InitiateRequest) (core.InitiateResponse, error) {
			called = true
			if req.TenantID != core.ObjectID("64f0c2a9e4b0a1b2c3d4e5f6") {
				t.Fatalf("unexpected tenant id: %q", req.TenantID)
			}
			return expected, nil
		},
	}

	cmd := NewInitiateAuthorizationCommand(svc)
	collector := gocmd.NewResult[core.InitiateResponse]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := cmd.Execute(ctx, InitiateAuthorizationMessage{Request: core.InitiateRequest{
		TenantID:      "64f0c2a9e4b0a1b2c3d4e5f6",
		IntegrationID: "64f0c2a9e4b0a1b2c3d4e5f7",
		UserID:        "64f0c2a9e4b0a1b2c3d4e5f8",
	}})
	if err != nil {
		t.Fatalf("execute initiate: %v", err)
	}
	if !called {
		t.Fatalf("expected service invocation")
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if result.AuthorizationURL != expected.AuthorizationURL || result.State != expected.State {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestCompleteCallbackCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	expected := core.CallbackResult{RedirectURL: "https://app.example.com/integrations?status=connected"}
	called := false

	svc := stubCallbackService{
		completeFn: func(_ context.Context, req core.CallbackRequest) (core.CallbackResult, error) {
			called = true
			if req.Code != "auth-code" || req.Host != "app.example.com" {
				t.Fatalf("unexpected callback request: %#v", req)
			}
			return expected, nil
		},
	}

	cmd := NewCompleteCallbackCommand(svc)
	collector := gocmd.NewResult[core.CallbackResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := cmd.Execute(ctx, CompleteCallbackMessage{Request: core.CallbackRequest{
		State:  "opaque-state",
		Code:   "auth-code",
		Host:   "app.example.com",
		Scheme: "https",
	}})
	if err != nil {
		t.Fatalf("execute complete callback: %v", err)
	}
	if !called {
		t.Fatalf("expected service invocation")
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if result.RedirectURL != expected.RedirectURL {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestCompleteCallbackCommand_PropagatesServiceError(t *testing.T) {
	svcErr := errors.New("pipeline rejected attempt")
	svc := stubCallbackService{
		completeFn: func(context.Context, core.CallbackRequest) (core.CallbackResult, error) {
			return core.CallbackResult{}, svcErr
		},
	}

	cmd := NewCompleteCallbackCommand(svc)
	err := cmd.Execute(context.Background(), CompleteCallbackMessage{Request: core.CallbackRequest{Host: "app.example.com"}})
	if !errors.Is(err, svcErr) {
		t.Fatalf("expected service error, got %v", err)
	}
}

func TestSweepStalePendingCommand_StoresSweptCount(t *testing.T) {
	svc := stubCallbackService{
		sweepFn: func(context.Context) (int, error) { return 3, nil },
	}

	cmd := NewSweepStalePendingCommand(svc)
	collector := gocmd.NewResult[int]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	if err := cmd.Execute(ctx, SweepStalePendingMessage{}); err != nil {
		t.Fatalf("execute sweep: %v", err)
	}
	swept, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if swept != 3 {
		t.Fatalf("expected 3 swept, got %d", swept)
	}
}

func TestCommands_RequireService(t *testing.T) {
	if err := NewInitiateAuthorizationCommand(nil).Execute(context.Background(), InitiateAuthorizationMessage{}); err == nil {
		t.Fatalf("expected dependency error for initiate")
	}
	if err := NewCompleteCallbackCommand(nil).Execute(context.Background(), CompleteCallbackMessage{}); err == nil {
		t.Fatalf("expected dependency error for complete callback")
	}
	if err := NewSweepStalePendingCommand(nil).Execute(context.Background(), SweepStalePendingMessage{}); err == nil {
		t.Fatalf("expected dependency error for sweep")
	}
}

func TestMessageValidation(t *testing.T) {
	valid := InitiateAuthorizationMessage{Request: core.InitiateRequest{
		TenantID:      "64f0c2a9e4b0a1b2c3d4e5f6",
		IntegrationID: "64f0c2a9e4b0a1b2c3d4e5f7",
		UserID:        "64f0c2a9e4b0a1b2c3d4e5f8",
	}}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid initiate message: %v", err)
	}

	invalid := valid
	invalid.Request.IntegrationID = "not-an-object-id"
	err := invalid.Validate()
	if err == nil {
		t.Fatalf("expected validation failure for malformed integration id")
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.TextCode != core.ServiceErrorBadInput {
		t.Fatalf("expected %q text code, got %q", core.ServiceErrorBadInput, rich.TextCode)
	}
	validation := rich.AllValidationErrors()
	if len(validation) == 0 || validation[0].Field != "integration_id" {
		t.Fatalf("expected integration_id validation field, got %#v", validation)
	}

	if err := (CompleteCallbackMessage{}).Validate(); err == nil {
		t.Fatalf("expected validation failure for missing host")
	}
	if err := (CompleteCallbackMessage{Request: core.CallbackRequest{Host: "app.example.com"}}).Validate(); err != nil {
		t.Fatalf("expected valid callback message: %v", err)
	}

	if err := (SweepStalePendingMessage{}).Validate(); err != nil {
		t.Fatalf("expected sweep message to validate: %v", err)
	}
}
