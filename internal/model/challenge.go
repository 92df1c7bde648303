package model

import "time"

// Trigger identifies the identity-provider hook invocation kind. A closed set:
// adding a trigger means extending the switch in the challenge handler, not a
// string-matching fallthrough.
type Trigger int

const (
	TriggerUnknown Trigger = iota
	TriggerDefineAuthChallenge
	TriggerCreateAuthChallenge
	TriggerVerifyAuthChallenge
	TriggerCustomMessageAdminCreateUser
	TriggerCustomMessageForgotPassword
	TriggerCustomMessageResendCode
)

// ParseTrigger maps the provider's triggerSource string onto the closed set.
func ParseTrigger(source string) Trigger {
	switch source {
	case "DefineAuthChallenge_Authentication":
		return TriggerDefineAuthChallenge
	case "CreateAuthChallenge_Authentication":
		return TriggerCreateAuthChallenge
	case "VerifyAuthChallengeResponse_Authentication":
		return TriggerVerifyAuthChallenge
	case "CustomMessage_AdminCreateUser":
		return TriggerCustomMessageAdminCreateUser
	case "CustomMessage_ForgotPassword":
		return TriggerCustomMessageForgotPassword
	case "CustomMessage_ResendCode":
		return TriggerCustomMessageResendCode
	default:
		return TriggerUnknown
	}
}

func (t Trigger) String() string {
	switch t {
	case TriggerDefineAuthChallenge:
		return "DefineAuthChallenge_Authentication"
	case TriggerCreateAuthChallenge:
		return "CreateAuthChallenge_Authentication"
	case TriggerVerifyAuthChallenge:
		return "VerifyAuthChallengeResponse_Authentication"
	case TriggerCustomMessageAdminCreateUser:
		return "CustomMessage_AdminCreateUser"
	case TriggerCustomMessageForgotPassword:
		return "CustomMessage_ForgotPassword"
	case TriggerCustomMessageResendCode:
		return "CustomMessage_ResendCode"
	default:
		return "Unknown"
	}
}

// ChallengeName is the only challenge kind this subsystem issues.
const ChallengeName = "CUSTOM_CHALLENGE"

// ChallengeResult is one entry of the provider-held session history.
type ChallengeResult struct {
	ChallengeName     string `json:"challengeName"`
	ChallengeResult   bool   `json:"challengeResult"`
	ChallengeMetadata string `json:"challengeMetadata,omitempty"`
}

// HookRequest carries the inputs of one hook invocation.
type HookRequest struct {
	UserAttributes             map[string]string `json:"userAttributes"`
	Session                    []ChallengeResult `json:"session,omitempty"`
	Code                       string            `json:"code,omitempty"`
	CodeParameter              string            `json:"codeParameter,omitempty"`
	RenderedMessage            string            `json:"renderedMessage,omitempty"`
	ChallengeAnswer            string            `json:"challengeAnswer,omitempty"`
	PrivateChallengeParameters map[string]string `json:"privateChallengeParameters,omitempty"`
	UserNotFound               bool              `json:"userNotFound,omitempty"`
}

// HookResponse is mutated in place and threaded back to the identity provider.
type HookResponse struct {
	ChallengeName              string            `json:"challengeName,omitempty"`
	IssueTokens                bool              `json:"issueTokens"`
	FailAuthentication         bool              `json:"failAuthentication"`
	AnswerCorrect              bool              `json:"answerCorrect"`
	PublicChallengeParameters  map[string]string `json:"publicChallengeParameters,omitempty"`
	PrivateChallengeParameters map[string]string `json:"privateChallengeParameters,omitempty"`
	ChallengeMetadata          string            `json:"challengeMetadata,omitempty"`
	SMSMessage                 string            `json:"smsMessage,omitempty"`
}

// HookEvent is one identity-provider hook invocation.
type HookEvent struct {
	TriggerSource string       `json:"triggerSource" binding:"required"`
	Request       HookRequest  `json:"request" binding:"required"`
	Response      HookResponse `json:"response"`
}

// Trigger returns the parsed trigger kind for the event.
func (e *HookEvent) Trigger() Trigger {
	return ParseTrigger(e.TriggerSource)
}

// ChallengeSession is one in-flight OTP exchange. The expected code lives only
// in the event response private parameters; the provider owns expiry.
type ChallengeSession struct {
	Phone        string
	ExpectedCode string
	SessionToken string
	CreatedAt    time.Time
}
