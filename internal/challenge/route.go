package challenge

import (
	"context"

	"github.com/oson-apps/notify-engine/internal/carrier"
	"github.com/oson-apps/notify-engine/internal/gateway"
	"github.com/oson-apps/notify-engine/pkg/logger"
)

// SMSRoute delivers one message to one phone number, picking the gateway by
// carrier and retrying once on the other gateway if the first one fails.
type SMSRoute struct {
	router   *carrier.Router
	primary  gateway.Sender
	fallback gateway.Sender
	log      *logger.Logger
}

func NewSMSRoute(router *carrier.Router, primary, fallback gateway.Sender, log *logger.Logger) *SMSRoute {
	return &SMSRoute{router: router, primary: primary, fallback: fallback, log: log}
}

// Deliver routes and sends the message. Exactly one cross-gateway fallback:
// if the routed gateway fails, the other one gets a single try before giving
// up.
func (r *SMSRoute) Deliver(ctx context.Context, phone, body string) gateway.Outcome {
	decision := r.router.Route(phone)

	first, second := r.fallback, r.primary
	if decision.UsePrimaryGateway {
		first, second = r.primary, r.fallback
	}

	msg := gateway.Message{Body: body}
	out := first.Send(ctx, phone, msg)
	if out.Success {
		return out
	}

	r.log.Warn("sms delivery failed, retrying via other gateway",
		"provider", first.Provider(), "carrier", decision.Carrier, "reason", out.Reason)
	return second.Send(ctx, phone, msg)
}
