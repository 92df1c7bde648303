package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTriggerRoundTrip(t *testing.T) {
	triggers := []Trigger{
		TriggerDefineAuthChallenge,
		TriggerCreateAuthChallenge,
		TriggerVerifyAuthChallenge,
		TriggerCustomMessageAdminCreateUser,
		TriggerCustomMessageForgotPassword,
		TriggerCustomMessageResendCode,
	}
	for _, trig := range triggers {
		assert.Equal(t, trig, ParseTrigger(trig.String()))
	}
}

func TestParseTriggerUnknown(t *testing.T) {
	assert.Equal(t, TriggerUnknown, ParseTrigger("PreSignUp_SignUp"))
	assert.Equal(t, TriggerUnknown, ParseTrigger(""))
}
