package sender

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) SendEmail(ctx context.Context, to []string, subject, body string) error {
	return m.Called(ctx, to, subject, body).Error(0)
}

const update = `{"orderId":"2000000123","packageName":"com.example.app","productId":"sku1",
	"purchaseTime":1700000000000,"purchaseToken":"tok","purchaseState":0,
	"isAutoRenewing":true,"isAcknowledged":true,"originalJson":"","signature":""}`

func TestPurchaseAlertSends(t *testing.T) {
	s := new(mockSender)
	s.On("SendEmail", mock.Anything, []string{"ops@example.com"}, "Purchase update: sku1 (purchased)",
		mock.MatchedBy(func(body string) bool {
			return strings.Contains(body, "Order: 2000000123") &&
				strings.Contains(body, "Purchased at: 2023-11-14T22:13:20Z")
		})).Return(nil).Once()

	a := NewPurchaseAlert(s, []string{"ops@example.com"})
	require.NoError(t, a.HandleMessage(context.Background(), []byte(update)))
	s.AssertExpectations(t)
}

func TestPurchaseAlertRetries(t *testing.T) {
	s := new(mockSender)
	s.On("SendEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("421 try later")).Twice()
	s.On("SendEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	a := NewPurchaseAlert(s, []string{"ops@example.com"})
	a.initialDelay = 0
	require.NoError(t, a.HandleMessage(context.Background(), []byte(update)))
	s.AssertNumberOfCalls(t, "SendEmail", 3)
}

func TestPurchaseAlertGivesUp(t *testing.T) {
	s := new(mockSender)
	s.On("SendEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("auth failed"))

	a := NewPurchaseAlert(s, []string{"ops@example.com"})
	a.initialDelay = 0
	err := a.HandleMessage(context.Background(), []byte(update))
	assert.ErrorContains(t, err, "auth failed")
	s.AssertNumberOfCalls(t, "SendEmail", 3)

	assert.Error(t, a.HandleMessage(context.Background(), []byte(`[]`)))
}
