package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"stock-ledger/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const otherCompany = "22222222-2222-2222-2222-222222222222"

func lowStock(id string, quantity, min int) *models.Product {
	p := product(id, "SKU-"+id[:2], quantity)
	p.MinQuantity = min
	return p
}

func TestNotificationService_RefreshBroadcastsPerCompany(t *testing.T) {
	repo := new(MockProductRepository)
	svc := NewNotificationService(repo, nil, time.Minute, zaptest.NewLogger(t))

	repo.On("ListCompanies", mock.Anything).Return([]string{testCompany, otherCompany}, nil)
	repo.On("ListLowStock", mock.Anything, testCompany).Return([]*models.Product{lowStock(testProduct, 1, 5)}, nil)
	repo.On("ListLowStock", mock.Anything, otherCompany).Return([]*models.Product{}, nil)

	subA := &fakeSubscriber{}
	subB := &fakeSubscriber{}
	svc.Subscribe(testCompany, subA)
	svc.Subscribe(otherCompany, subB)

	require.NoError(t, svc.Refresh(context.Background()))

	require.Len(t, subA.messages, 1)
	msg := subA.messages[0].(models.LowStockNotification)
	assert.Equal(t, testCompany, msg.CompanyID)
	assert.Equal(t, 1, msg.LowStockCount)
	assert.Equal(t, testProduct, msg.Items[0].ProductID)

	require.Len(t, subB.messages, 1)
	assert.Equal(t, 0, subB.messages[0].(models.LowStockNotification).LowStockCount)
}

func TestNotificationService_FailingSubscriberIsDropped(t *testing.T) {
	repo := new(MockProductRepository)
	svc := NewNotificationService(repo, nil, time.Minute, zaptest.NewLogger(t))

	repo.On("ListCompanies", mock.Anything).Return([]string{testCompany}, nil)
	repo.On("ListLowStock", mock.Anything, testCompany).Return([]*models.Product{}, nil)

	broken := &fakeSubscriber{failWith: errors.New("broken pipe")}
	healthy := &fakeSubscriber{}
	svc.Subscribe(testCompany, broken)
	svc.Subscribe(testCompany, healthy)

	require.NoError(t, svc.Refresh(context.Background()))
	require.NoError(t, svc.Refresh(context.Background()))

	assert.True(t, broken.closed)
	assert.Len(t, healthy.messages, 2)
}

func TestNotificationService_Unsubscribe(t *testing.T) {
	repo := new(MockProductRepository)
	svc := NewNotificationService(repo, nil, time.Minute, zaptest.NewLogger(t))

	repo.On("ListCompanies", mock.Anything).Return([]string{testCompany}, nil)
	repo.On("ListLowStock", mock.Anything, testCompany).Return([]*models.Product{}, nil)

	sub := &fakeSubscriber{}
	unsubscribe := svc.Subscribe(testCompany, sub)
	unsubscribe()

	require.NoError(t, svc.Refresh(context.Background()))
	assert.Empty(t, sub.messages)
}

func TestNotificationService_RefreshJoinsCompanyErrors(t *testing.T) {
	repo := new(MockProductRepository)
	svc := NewNotificationService(repo, nil, time.Minute, zaptest.NewLogger(t))

	boom := errors.New("timeout")
	repo.On("ListCompanies", mock.Anything).Return([]string{testCompany, otherCompany}, nil)
	repo.On("ListLowStock", mock.Anything, testCompany).Return([]*models.Product(nil), boom)
	repo.On("ListLowStock", mock.Anything, otherCompany).Return([]*models.Product{}, nil)

	err := svc.Refresh(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), testCompany)
	repo.AssertCalled(t, "ListLowStock", mock.Anything, otherCompany)
}

func TestNotificationService_LowStockCountWithoutRedis(t *testing.T) {
	repo := new(MockProductRepository)
	svc := NewNotificationService(repo, nil, time.Minute, zaptest.NewLogger(t))

	repo.On("ListLowStock", mock.Anything, testCompany).Return([]*models.Product{
		lowStock(testProduct, 0, 1),
		lowStock(otherProduct, 2, 2),
	}, nil)

	count, err := svc.LowStockCount(context.Background(), testCompany)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestNotificationService_RunStopsOnCancel(t *testing.T) {
	repo := new(MockProductRepository)
	svc := NewNotificationService(repo, nil, 10*time.Millisecond, zaptest.NewLogger(t))

	repo.On("ListCompanies", mock.Anything).Return([]string{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("notifier did not stop")
	}
	repo.AssertCalled(t, "ListCompanies", mock.Anything)
}

func TestNotificationService_StalledSubscriberDoesNotBlockOthers(t *testing.T) {
	repo := new(MockProductRepository)
	svc := NewNotificationService(repo, nil, time.Minute, zaptest.NewLogger(t))

	repo.On("ListCompanies", mock.Anything).Return([]string{testCompany}, nil)
	repo.On("ListLowStock", mock.Anything, testCompany).Return([]*models.Product{}, nil)

	stalled := newStalledSubscriber()
	healthy := &fakeSubscriber{}
	svc.Subscribe(testCompany, stalled)
	svc.Subscribe(testCompany, healthy)

	refreshed := make(chan error, 1)
	go func() { refreshed <- svc.Refresh(context.Background()) }()

	select {
	case <-stalled.writing:
	case <-time.After(2 * time.Second):
		t.Fatal("stalled subscriber never received a write")
	}

	// con una escritura colgada, suscribir y desuscribir siguen respondiendo
	subscribed := make(chan struct{})
	go func() {
		unsubscribe := svc.Subscribe(otherCompany, &fakeSubscriber{})
		unsubscribe()
		close(subscribed)
	}()
	select {
	case <-subscribed:
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe blocked by a stalled write")
	}

	assert.Eventually(t, func() bool {
		healthy.mu.Lock()
		defer healthy.mu.Unlock()
		return len(healthy.messages) == 1
	}, 2*time.Second, 10*time.Millisecond)

	close(stalled.release)
	require.NoError(t, <-refreshed)
}
