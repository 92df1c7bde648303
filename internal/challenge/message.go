package challenge

import (
	"context"
	"fmt"

	"github.com/oson-apps/notify-engine/internal/model"
)

// customMessage handles provider-generated messages for non-challenge
// triggers: new-account credential delivery, forgot-password codes and resend
// codes. Forgot-password and resend codes arrive provider-encrypted; the
// new-account trigger is a legacy path where the provider hands over an
// already-rendered plaintext message.
func (h *Handler) customMessage(ctx context.Context, evt *model.HookEvent) {
	phone := evt.Request.UserAttributes["phone_number"]
	if phone == "" {
		return
	}

	var credential, kind string
	switch evt.Trigger() {
	case model.TriggerCustomMessageForgotPassword:
		kind = templateForgotPassword
		var ok bool
		if credential, ok = h.decryptCode(ctx, evt); !ok {
			return
		}
	case model.TriggerCustomMessageResendCode:
		kind = templateResendCode
		var ok bool
		if credential, ok = h.decryptCode(ctx, evt); !ok {
			return
		}
	case model.TriggerCustomMessageAdminCreateUser:
		kind = templateNewAccount
		credential = h.legacyCredential(evt)
	default:
		return
	}

	body := h.templates.Render(ctx, kind, evt.Request.UserAttributes["locale"], map[string]string{
		"code":  credential,
		"phone": phone,
	})
	if body == "" {
		body = fmt.Sprintf("Your code is %s", credential)
	}

	if out := h.route.Deliver(ctx, phone, body); !out.Success {
		h.log.Error(fmt.Errorf("%s", out.Reason), "custom message delivery failed",
			"trigger", evt.TriggerSource, "phone", phone)
		// Leave the provider's own message in place so its default delivery
		// still fires.
		return
	}

	evt.Response.SMSMessage = body
}

// decryptCode recovers the plaintext code from the provider-encrypted
// request. On failure the hook must not overwrite the provider's own message:
// returning ok=false leaves the event untouched so default delivery fires.
func (h *Handler) decryptCode(ctx context.Context, evt *model.HookEvent) (string, bool) {
	if evt.Request.Code == "" {
		// No ciphertext at all: fall back to the code parameter placeholder.
		if evt.Request.CodeParameter != "" {
			return evt.Request.CodeParameter, true
		}
		return "", false
	}

	plain, err := h.decryptor.Decrypt(ctx, evt.Request.Code)
	if err != nil {
		if h.metrics != nil {
			h.metrics.DecryptFailures.Inc()
		}
		h.log.Error(err, "code decryption failed, deferring to provider delivery",
			"trigger", evt.TriggerSource)
		return "", false
	}
	return plain, true
}

// legacyCredential extracts the temporary credential from the provider's
// rendered message. Compatibility shim for the deprecated plaintext
// integration: pattern candidates are tried in order, then the code
// parameter, and as a last resort a placeholder so the flow never fails
// closed.
func (h *Handler) legacyCredential(evt *model.HookEvent) string {
	if evt.Request.RenderedMessage != "" {
		if credential, ok := h.extractor.Extract(evt.Request.RenderedMessage); ok {
			return credential
		}
		h.log.Warn("no credential pattern matched rendered message",
			"trigger", evt.TriggerSource)
	}
	if evt.Request.CodeParameter != "" {
		return evt.Request.CodeParameter
	}
	return "********"
}
