package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderStatus(t *testing.T) {
	t.Run("pending order", func(t *testing.T) {
		o := &Order{Status: StatusPending}
		assert.True(t, o.IsPending())
		assert.False(t, o.IsPaid())
	})

	t.Run("paid order", func(t *testing.T) {
		o := &Order{Status: StatusPaid}
		assert.False(t, o.IsPending())
		assert.True(t, o.IsPaid())
	})

	t.Run("failed order", func(t *testing.T) {
		o := &Order{Status: StatusFailed}
		assert.False(t, o.IsPending())
		assert.False(t, o.IsPaid())
	})
}

func TestOrder_KeyMatches(t *testing.T) {
	o := &Order{Key: "ok_secret"}

	assert.True(t, o.KeyMatches("ok_secret"))
	assert.False(t, o.KeyMatches("ok_other"))
	assert.False(t, o.KeyMatches(""), "empty key never matches")

	empty := &Order{}
	assert.False(t, empty.KeyMatches(""), "order without key rejects empty comparison")
}
