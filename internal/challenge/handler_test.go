package challenge

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oson-apps/notify-engine/internal/carrier"
	"github.com/oson-apps/notify-engine/internal/gateway"
	"github.com/oson-apps/notify-engine/internal/model"
	"github.com/oson-apps/notify-engine/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.NewLogger(&logger.Config{
		Level:      logger.InfoLevel,
		TimeFormat: time.RFC3339,
		Output:     io.Discard,
	})
}

// stubSender records send calls for the route under test.
type stubSender struct {
	channel  string
	provider string
	fail     bool

	mu     sync.Mutex
	bodies []string
	phones []string
}

func (s *stubSender) Send(_ context.Context, recipient string, msg gateway.Message) gateway.Outcome {
	s.mu.Lock()
	s.phones = append(s.phones, recipient)
	s.bodies = append(s.bodies, msg.Body)
	s.mu.Unlock()

	out := gateway.Outcome{Channel: s.channel, Provider: s.provider, Attempts: 1, Timestamp: time.Now()}
	if s.fail {
		out.Reason = "stub failure"
		return out
	}
	out.Success = true
	return out
}

func (s *stubSender) Provider() string { return s.provider }
func (s *stubSender) Channel() string  { return s.channel }

type fakeDecryptor struct {
	plain string
	err   error
	calls int
}

func (f *fakeDecryptor) Decrypt(context.Context, string) (string, error) {
	f.calls++
	return f.plain, f.err
}

func testHandler() (*Handler, *stubSender, *stubSender, *fakeDecryptor) {
	primary := &stubSender{channel: model.ChannelSMS, provider: "playmobile"}
	fallback := &stubSender{channel: model.ChannelSMS, provider: "infobip"}
	route := NewSMSRoute(carrier.NewRouter("998"), primary, fallback, testLogger())
	templates := NewTemplateCache(nil, false, 0, testLogger())
	decryptor := &fakeDecryptor{plain: "654321"}

	h := NewHandler(route, templates, decryptor, testLogger(), nil)
	h.codeFn = func() (string, error) { return "123456", nil }
	return h, primary, fallback, decryptor
}

func defineEvent(session []model.ChallengeResult) *model.HookEvent {
	return &model.HookEvent{
		TriggerSource: model.TriggerDefineAuthChallenge.String(),
		Request:       model.HookRequest{Session: session},
	}
}

func TestDefineTransitions(t *testing.T) {
	correct := model.ChallengeResult{ChallengeName: model.ChallengeName, ChallengeResult: true}
	wrong := model.ChallengeResult{ChallengeName: model.ChallengeName, ChallengeResult: false}
	foreign := model.ChallengeResult{ChallengeName: "PASSWORD_VERIFIER", ChallengeResult: true}

	tests := []struct {
		name          string
		session       []model.ChallengeResult
		wantChallenge bool
		wantTokens    bool
		wantFail      bool
	}{
		{"empty session issues challenge", nil, true, false, false},
		{"one correct round issues tokens", []model.ChallengeResult{correct}, false, true, false},
		{"one wrong round fails", []model.ChallengeResult{wrong}, false, false, true},
		{"foreign challenge kind fails", []model.ChallengeResult{foreign}, false, false, true},
		{"two rounds fail even if last is correct", []model.ChallengeResult{wrong, correct}, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, _, _ := testHandler()
			evt := h.Handle(context.Background(), defineEvent(tt.session))

			if tt.wantChallenge {
				assert.Equal(t, model.ChallengeName, evt.Response.ChallengeName)
			}
			assert.Equal(t, tt.wantTokens, evt.Response.IssueTokens)
			assert.Equal(t, tt.wantFail, evt.Response.FailAuthentication)
		})
	}
}

func TestDefineUserNotFound(t *testing.T) {
	h, _, _, _ := testHandler()
	evt := defineEvent(nil)
	evt.Request.UserNotFound = true

	h.Handle(context.Background(), evt)

	assert.True(t, evt.Response.FailAuthentication)
	assert.False(t, evt.Response.IssueTokens)
	assert.Empty(t, evt.Response.ChallengeName)
}

func TestCreateDeliversCodeAndSetsParameters(t *testing.T) {
	h, primary, _, _ := testHandler()

	evt := &model.HookEvent{
		TriggerSource: model.TriggerCreateAuthChallenge.String(),
		Request: model.HookRequest{
			UserAttributes: map[string]string{"phone_number": "998901234567"},
		},
	}
	h.Handle(context.Background(), evt)

	require.Len(t, primary.phones, 1, "beeline number goes out via the primary gateway")
	assert.Equal(t, "998901234567", primary.phones[0])
	assert.Contains(t, primary.bodies[0], "123456")

	assert.Equal(t, model.ChallengeName, evt.Response.ChallengeName)
	assert.Equal(t, "123456", evt.Response.PrivateChallengeParameters["answer"])
	assert.Equal(t, "998901234567", evt.Response.PublicChallengeParameters["phone"])
	assert.NotContains(t, evt.Response.PublicChallengeParameters, "answer",
		"the code never appears in public parameters")
}

func TestCreateWithoutPhoneFails(t *testing.T) {
	h, primary, fallback, _ := testHandler()

	evt := &model.HookEvent{
		TriggerSource: model.TriggerCreateAuthChallenge.String(),
		Request:       model.HookRequest{UserAttributes: map[string]string{}},
	}
	h.Handle(context.Background(), evt)

	assert.True(t, evt.Response.FailAuthentication)
	assert.Empty(t, primary.phones)
	assert.Empty(t, fallback.phones)
}

func TestCreateCompletesWhenDeliveryFails(t *testing.T) {
	h, primary, fallback, _ := testHandler()
	primary.fail = true
	fallback.fail = true

	evt := &model.HookEvent{
		TriggerSource: model.TriggerCreateAuthChallenge.String(),
		Request: model.HookRequest{
			UserAttributes: map[string]string{"phone_number": "998901234567"},
		},
	}
	h.Handle(context.Background(), evt)

	// The provider's challenge timeout owns undelivered codes; the hook still
	// answers with a complete challenge.
	assert.False(t, evt.Response.FailAuthentication)
	assert.Equal(t, "123456", evt.Response.PrivateChallengeParameters["answer"])
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name     string
		expected string
		answer   string
		want     bool
	}{
		{"match", "123456", "123456", true},
		{"mismatch", "123456", "999999", false},
		{"empty expected never matches", "", "", false},
		{"case exact", "123456", "123456 ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, _, _ := testHandler()
			evt := &model.HookEvent{
				TriggerSource: model.TriggerVerifyAuthChallenge.String(),
				Request: model.HookRequest{
					PrivateChallengeParameters: map[string]string{"answer": tt.expected},
					ChallengeAnswer:            tt.answer,
				},
			}
			h.Handle(context.Background(), evt)
			assert.Equal(t, tt.want, evt.Response.AnswerCorrect)
		})
	}
}

func TestChallengeRoundTrip(t *testing.T) {
	h, _, _, _ := testHandler()
	ctx := context.Background()

	// Step 1: define with no history issues the challenge.
	defineEvt := h.Handle(ctx, defineEvent(nil))
	require.Equal(t, model.ChallengeName, defineEvt.Response.ChallengeName)

	// Step 2: create generates and stores the code.
	createEvt := &model.HookEvent{
		TriggerSource: model.TriggerCreateAuthChallenge.String(),
		Request: model.HookRequest{
			UserAttributes: map[string]string{"phone_number": "998901234567"},
		},
	}
	h.Handle(ctx, createEvt)
	code := createEvt.Response.PrivateChallengeParameters["answer"]
	require.NotEmpty(t, code)

	// Step 3: verify with the threaded-through private parameters.
	verifyEvt := &model.HookEvent{
		TriggerSource: model.TriggerVerifyAuthChallenge.String(),
		Request: model.HookRequest{
			PrivateChallengeParameters: createEvt.Response.PrivateChallengeParameters,
			ChallengeAnswer:            code,
		},
	}
	h.Handle(ctx, verifyEvt)
	assert.True(t, verifyEvt.Response.AnswerCorrect)

	// Step 4: define again with the correct round issues tokens.
	finalEvt := h.Handle(ctx, defineEvent([]model.ChallengeResult{
		{ChallengeName: model.ChallengeName, ChallengeResult: true},
	}))
	assert.True(t, finalEvt.Response.IssueTokens)
}

func TestUnknownTriggerPassesThrough(t *testing.T) {
	h, primary, fallback, _ := testHandler()

	evt := &model.HookEvent{
		TriggerSource: "PreSignUp_SignUp",
		Request: model.HookRequest{
			UserAttributes: map[string]string{"phone_number": "998901234567"},
		},
	}
	before := *evt
	h.Handle(context.Background(), evt)

	assert.Equal(t, before.Response, evt.Response)
	assert.Empty(t, primary.phones)
	assert.Empty(t, fallback.phones)
}

func TestSixDigitCodeFormat(t *testing.T) {
	for i := 0; i < 20; i++ {
		code, err := sixDigitCode()
		require.NoError(t, err)
		assert.Len(t, code, 6)
		for _, c := range code {
			assert.True(t, c >= '0' && c <= '9', "code %q must be numeric", code)
		}
	}
}

func TestCustomMessageForgotPassword(t *testing.T) {
	h, primary, _, decryptor := testHandler()

	evt := &model.HookEvent{
		TriggerSource: model.TriggerCustomMessageForgotPassword.String(),
		Request: model.HookRequest{
			UserAttributes: map[string]string{"phone_number": "998901234567"},
			Code:           "ZW5jcnlwdGVk",
		},
	}
	h.Handle(context.Background(), evt)

	assert.Equal(t, 1, decryptor.calls)
	require.Len(t, primary.bodies, 1)
	assert.Contains(t, primary.bodies[0], "654321")
	assert.Contains(t, evt.Response.SMSMessage, "654321")
}

func TestCustomMessageDecryptFailureDefersToProvider(t *testing.T) {
	h, primary, fallback, decryptor := testHandler()
	decryptor.err = fmt.Errorf("key service down")

	evt := &model.HookEvent{
		TriggerSource: model.TriggerCustomMessageForgotPassword.String(),
		Request: model.HookRequest{
			UserAttributes: map[string]string{"phone_number": "998901234567"},
			Code:           "ZW5jcnlwdGVk",
		},
	}
	evt.Response.SMSMessage = "provider default"
	h.Handle(context.Background(), evt)

	assert.Equal(t, "provider default", evt.Response.SMSMessage,
		"decrypt failure must not overwrite the provider's own message")
	assert.Empty(t, primary.phones)
	assert.Empty(t, fallback.phones)
}

func TestCustomMessageDeliveryFailureDefersToProvider(t *testing.T) {
	h, primary, fallback, _ := testHandler()
	primary.fail = true
	fallback.fail = true

	evt := &model.HookEvent{
		TriggerSource: model.TriggerCustomMessageResendCode.String(),
		Request: model.HookRequest{
			UserAttributes: map[string]string{"phone_number": "998901234567"},
			Code:           "ZW5jcnlwdGVk",
		},
	}
	h.Handle(context.Background(), evt)

	assert.Empty(t, evt.Response.SMSMessage,
		"failed delivery leaves the provider's default path in charge")
}

func TestCustomMessageAdminCreateUserLegacyExtraction(t *testing.T) {
	h, primary, _, _ := testHandler()

	evt := &model.HookEvent{
		TriggerSource: model.TriggerCustomMessageAdminCreateUser.String(),
		Request: model.HookRequest{
			UserAttributes:  map[string]string{"phone_number": "998901234567"},
			RenderedMessage: "Welcome! Your temporary password is Xk29!abc. Sign in to continue.",
		},
	}
	h.Handle(context.Background(), evt)

	require.Len(t, primary.bodies, 1)
	assert.Contains(t, primary.bodies[0], "Xk29!abc")
}

func TestCustomMessageAdminCreateUserFallsBackToCodeParameter(t *testing.T) {
	h, primary, _, _ := testHandler()

	evt := &model.HookEvent{
		TriggerSource: model.TriggerCustomMessageAdminCreateUser.String(),
		Request: model.HookRequest{
			UserAttributes:  map[string]string{"phone_number": "998901234567"},
			RenderedMessage: "Welcome aboard, nothing to see here.",
			CodeParameter:   "{####}",
		},
	}
	h.Handle(context.Background(), evt)

	require.Len(t, primary.bodies, 1)
	assert.Contains(t, primary.bodies[0], "{####}")
}

func TestCustomMessageWithoutPhoneIsNoop(t *testing.T) {
	h, primary, fallback, decryptor := testHandler()

	evt := &model.HookEvent{
		TriggerSource: model.TriggerCustomMessageForgotPassword.String(),
		Request:       model.HookRequest{Code: "ZW5jcnlwdGVk"},
	}
	h.Handle(context.Background(), evt)

	assert.Zero(t, decryptor.calls)
	assert.Empty(t, primary.phones)
	assert.Empty(t, fallback.phones)
	assert.Empty(t, evt.Response.SMSMessage)
}
