package payments

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ipnSecret = "ipn-secret"

func TestSortedJSON(t *testing.T) {
	out, err := sortedJSON([]byte(`{"b":1.50,"a":{"z":"<x>","c":[3,1]},"order_id":"o-1"}`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"c":[3,1],"z":"<x>"},"b":1.50,"order_id":"o-1"}`, string(out))
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"payment_status":"finished","order_id":"o-1","payment_id":5077125051,"actually_paid":29}`)
	// Key order in the body must not matter
	reordered := []byte(`{"order_id":"o-1","actually_paid":29,"payment_id":5077125051,"payment_status":"finished"}`)

	sig, err := Sign(body, ipnSecret)
	require.NoError(t, err)

	assert.NoError(t, VerifySignature(body, sig, ipnSecret))
	assert.NoError(t, VerifySignature(reordered, sig, ipnSecret))
	assert.NoError(t, VerifySignature(body, "  "+sig, ipnSecret))

	tampered := []byte(`{"payment_status":"finished","order_id":"o-2","payment_id":5077125051,"actually_paid":29}`)
	assert.ErrorIs(t, VerifySignature(tampered, sig, ipnSecret), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature(body, sig, "other"), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature(body, "", ipnSecret), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature(body, sig, ""), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature([]byte(`{not json`), sig, ipnSecret), ErrInvalidPayload)
}

func TestParseNotification(t *testing.T) {
	n, err := ParseNotification([]byte(`{"payment_id":5077125051,"payment_status":"Finished","order_id":"o-1","actually_paid":29.5}`))
	require.NoError(t, err)
	assert.Equal(t, "o-1", n.OrderID)
	assert.Equal(t, "5077125051", n.PaymentID)
	assert.Equal(t, "finished", n.PaymentStatus)
	require.NotNil(t, n.ActuallyPaid)
	assert.Equal(t, "29.5", n.ActuallyPaid.String())

	n, err = ParseNotification([]byte(`{"payment_status":"waiting","order_id":"o-1","actually_paid":null}`))
	require.NoError(t, err)
	assert.Nil(t, n.ActuallyPaid)

	bad := []string{
		`{"payment_status":"finished"}`,
		`{"order_id":"o-1"}`,
		`{"order_id":"o-1","payment_status":"teleported"}`,
		`nope`,
	}
	for _, body := range bad {
		_, err := ParseNotification([]byte(body))
		assert.ErrorIs(t, err, ErrInvalidPayload, body)
	}
}

func TestPlans(t *testing.T) {
	all := Plans()
	require.Len(t, all, 3)
	assert.Equal(t, PlanFree, all[0].ID)

	pro, ok := PlanByID(PlanPro)
	require.True(t, ok)
	assert.Equal(t, "29", pro.PriceUSD.String())
	assert.Equal(t, 30, pro.PeriodDays)

	elite, _ := PlanByID(PlanElite)
	assert.Equal(t, "99", elite.PriceUSD.String())

	_, ok = PlanByID("platinum")
	assert.False(t, ok)
}
