package challenge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oson-apps/notify-engine/internal/carrier"
	"github.com/oson-apps/notify-engine/internal/model"
)

func testRoute(primaryFail, fallbackFail bool) (*SMSRoute, *stubSender, *stubSender) {
	primary := &stubSender{channel: model.ChannelSMS, provider: "playmobile", fail: primaryFail}
	fallback := &stubSender{channel: model.ChannelSMS, provider: "infobip", fail: fallbackFail}
	return NewSMSRoute(carrier.NewRouter("998"), primary, fallback, testLogger()), primary, fallback
}

func TestDeliverRoutesPrimaryCarrier(t *testing.T) {
	route, primary, fallback := testRoute(false, false)

	out := route.Deliver(context.Background(), "998901234567", "code 123456")

	assert.True(t, out.Success)
	assert.Equal(t, "playmobile", out.Provider)
	assert.Len(t, primary.phones, 1)
	assert.Empty(t, fallback.phones, "no fallback attempt on success")
}

func TestDeliverRoutesFallbackCarrier(t *testing.T) {
	route, primary, fallback := testRoute(false, false)

	// Ucell prefixes are pinned to the fallback gateway.
	out := route.Deliver(context.Background(), "998931234567", "code 123456")

	assert.True(t, out.Success)
	assert.Equal(t, "infobip", out.Provider)
	assert.Empty(t, primary.phones)
	assert.Len(t, fallback.phones, 1)
}

func TestDeliverCrossGatewayRetry(t *testing.T) {
	route, primary, fallback := testRoute(true, false)

	out := route.Deliver(context.Background(), "998901234567", "code 123456")

	assert.True(t, out.Success)
	assert.Equal(t, "infobip", out.Provider)
	assert.Len(t, primary.phones, 1)
	assert.Len(t, fallback.phones, 1)
}

func TestDeliverBothGatewaysFail(t *testing.T) {
	route, primary, fallback := testRoute(true, true)

	out := route.Deliver(context.Background(), "998901234567", "code 123456")

	assert.False(t, out.Success)
	assert.Len(t, primary.phones, 1, "exactly one try per gateway")
	assert.Len(t, fallback.phones, 1)
}
