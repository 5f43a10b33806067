package service

import (
	"strings"
	"testing"

	"learnhub_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapMidtransStatus(t *testing.T) {
	cases := []struct {
		status, fraud string
		want          GatewayOutcome
	}{
		{"settlement", "", OutcomePaid},
		{"capture", "accept", OutcomePaid},
		{"capture", "", OutcomePaid},
		{"capture", "challenge", OutcomePending},
		{"capture", "deny", OutcomeFailed},
		{"pending", "", OutcomePending},
		{"authorize", "", OutcomePending},
		{"deny", "", OutcomeFailed},
		{"cancel", "", OutcomeFailed},
		{"expire", "", OutcomeFailed},
		{"failure", "", OutcomeFailed},
		{"refund", "", OutcomeIgnored},
		{"SETTLEMENT", "", OutcomePaid},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, MapMidtransStatus(c.status, c.fraud), c.status+"/"+c.fraud)
	}
}

func TestParseGrossAmount(t *testing.T) {
	n, err := ParseGrossAmount("800.00")
	require.NoError(t, err)
	assert.Equal(t, int64(800), n)

	n, err = ParseGrossAmount(" 150000 ")
	require.NoError(t, err)
	assert.Equal(t, int64(150000), n)

	_, err = ParseGrossAmount("abc")
	assert.Error(t, err)
}

func TestMidtransGateway_VerifySignature(t *testing.T) {
	g := NewMidtransGateway("server-key", false)
	n := &PaymentNotification{
		OrderID:     "LH-ABC",
		StatusCode:  "200",
		GrossAmount: "800.00",
	}
	n.SignatureKey = MidtransSignature(n.OrderID, n.StatusCode, n.GrossAmount, "server-key")
	assert.True(t, g.VerifySignature(n))

	upper := *n
	upper.SignatureKey = strings.ToUpper(n.SignatureKey)
	assert.True(t, g.VerifySignature(&upper))

	tampered := *n
	tampered.GrossAmount = "1.00"
	assert.False(t, g.VerifySignature(&tampered))

	empty := *n
	empty.SignatureKey = ""
	assert.False(t, g.VerifySignature(&empty))
}

func TestEffectivePrice(t *testing.T) {
	assert.Equal(t, int64(800), EffectivePrice(&model.Course{OriginalPrice: 1000, DiscountPercentage: 20}))
	assert.Equal(t, int64(500), EffectivePrice(&model.Course{Price: 500}))
	assert.Equal(t, int64(0), EffectivePrice(&model.Course{OriginalPrice: 1000, DiscountPercentage: 100}))
	assert.Equal(t, int64(1000), EffectivePrice(&model.Course{OriginalPrice: 1000, Price: 10}))
}

func TestApplyPromo(t *testing.T) {
	assert.Equal(t, int64(800), applyPromo(800, 0))
	assert.Equal(t, int64(600), applyPromo(800, 25))
	assert.Equal(t, int64(0), applyPromo(800, 100))
	assert.Equal(t, int64(67), applyPromo(133, 50))
}
