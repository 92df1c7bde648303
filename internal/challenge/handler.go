package challenge

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/oson-apps/notify-engine/internal/model"
	"github.com/oson-apps/notify-engine/pkg/envelope"
	"github.com/oson-apps/notify-engine/pkg/logger"
	"github.com/oson-apps/notify-engine/pkg/metrics"
)

const (
	paramAnswer = "answer"
	paramPhone  = "phone"
)

// Handler implements the identity-provider hook protocol: the three-step OTP
// challenge (Define, Create, Verify) plus custom-message delivery for other
// provider triggers. Each step is stateless request/response: inputs come
// from the event, outputs are written back onto it.
type Handler struct {
	route     *SMSRoute
	templates *TemplateCache
	decryptor envelope.Decryptor
	extractor credentialExtractor
	log       *logger.Logger
	metrics   *metrics.Metrics

	// codeFn generates the one-time code; swapped out in tests.
	codeFn func() (string, error)
}

func NewHandler(route *SMSRoute, templates *TemplateCache, decryptor envelope.Decryptor, log *logger.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		route:     route,
		templates: templates,
		decryptor: decryptor,
		extractor: newLegacyExtractor(),
		log:       log,
		metrics:   m,
		codeFn:    sixDigitCode,
	}
}

// Handle dispatches one hook event on its trigger kind and returns the
// mutated event. Unknown triggers pass through untouched: the provider's own
// behavior applies.
func (h *Handler) Handle(ctx context.Context, evt *model.HookEvent) *model.HookEvent {
	switch evt.Trigger() {
	case model.TriggerDefineAuthChallenge:
		h.define(evt)
	case model.TriggerCreateAuthChallenge:
		h.create(ctx, evt)
	case model.TriggerVerifyAuthChallenge:
		h.verify(evt)
	case model.TriggerCustomMessageAdminCreateUser,
		model.TriggerCustomMessageForgotPassword,
		model.TriggerCustomMessageResendCode:
		h.customMessage(ctx, evt)
	case model.TriggerUnknown:
		h.log.Warn("unknown hook trigger, passing through", "trigger_source", evt.TriggerSource)
	}
	return evt
}

// define decides what happens next in the sign-in flow:
// no session yet -> issue the challenge; exactly one correct prior challenge
// -> issue tokens; anything else -> fail authentication.
func (h *Handler) define(evt *model.HookEvent) {
	if evt.Request.UserNotFound {
		evt.Response.IssueTokens = false
		evt.Response.FailAuthentication = true
		return
	}

	session := evt.Request.Session
	switch {
	case len(session) == 0:
		evt.Response.ChallengeName = model.ChallengeName
		evt.Response.IssueTokens = false
		evt.Response.FailAuthentication = false
	case len(session) == 1 &&
		session[0].ChallengeName == model.ChallengeName &&
		session[0].ChallengeResult:
		evt.Response.IssueTokens = true
		evt.Response.FailAuthentication = false
	default:
		evt.Response.IssueTokens = false
		evt.Response.FailAuthentication = true
	}
}

// create issues the challenge: generate a code, compose the message, route it
// out over SMS. The plaintext code lives only in the private challenge
// parameters threaded back through the provider's session mechanism.
func (h *Handler) create(ctx context.Context, evt *model.HookEvent) {
	phone := evt.Request.UserAttributes["phone_number"]
	if phone == "" {
		evt.Response.FailAuthentication = true
		h.log.Warn("create challenge without phone number")
		return
	}

	code, err := h.codeFn()
	if err != nil {
		evt.Response.FailAuthentication = true
		h.log.Error(err, "challenge code generation failed")
		return
	}

	body := h.templates.Render(ctx, templateOTPChallenge, evt.Request.UserAttributes["locale"], map[string]string{
		"code":  code,
		"phone": phone,
	})
	if body == "" {
		body = fmt.Sprintf("Your verification code is %s", code)
	}

	if out := h.route.Deliver(ctx, phone, body); !out.Success {
		// The provider's own challenge timeout handles an undelivered code;
		// the hook itself must still complete.
		h.log.Error(fmt.Errorf("%s", out.Reason), "challenge sms delivery failed", "phone", phone)
	}
	if h.metrics != nil {
		h.metrics.ChallengesIssued.Inc()
	}

	evt.Response.ChallengeName = model.ChallengeName
	evt.Response.PublicChallengeParameters = map[string]string{paramPhone: phone}
	evt.Response.PrivateChallengeParameters = map[string]string{paramAnswer: code}
	evt.Response.ChallengeMetadata = model.ChallengeName
}

// verify compares the caller's answer to the code stored by the create step.
// No retries and no rate limiting here; both belong to the identity provider.
func (h *Handler) verify(evt *model.HookEvent) {
	expected := evt.Request.PrivateChallengeParameters[paramAnswer]
	correct := expected != "" && evt.Request.ChallengeAnswer == expected
	evt.Response.AnswerCorrect = correct

	if h.metrics != nil {
		result := "mismatch"
		if correct {
			result = "match"
		}
		h.metrics.ChallengesVerified.WithLabelValues(result).Inc()
	}
}

// sixDigitCode draws a uniform random 6-digit numeric code.
func sixDigitCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
