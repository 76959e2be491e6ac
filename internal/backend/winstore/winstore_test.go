package winstore

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"iap-bridge/internal/backend"
	"iap-bridge/internal/domain"
)

var _ backend.Backend = (*Backend)(nil)

// sliceView is a MapView over an ordered slice of pairs.
type sliceView[V any] struct {
	items []KeyValuePair[V]
	err   error
}

type sliceIterator[V any] struct {
	items []KeyValuePair[V]
	pos   int
}

func (v *sliceView[V]) First() (Iterator[V], error) {
	if v.err != nil {
		return nil, v.err
	}
	return &sliceIterator[V]{items: v.items}, nil
}

func (v *sliceView[V]) HasKey(key string) (bool, error) {
	for _, it := range v.items {
		if it.Key == key {
			return true, nil
		}
	}
	return false, nil
}

func (v *sliceView[V]) Lookup(key string) (V, error) {
	for _, it := range v.items {
		if it.Key == key {
			return it.Value, nil
		}
	}
	var zero V
	return zero, errors.New("element not found")
}

func (it *sliceIterator[V]) HasCurrent() (bool, error) { return it.pos < len(it.items), nil }

func (it *sliceIterator[V]) Current() (KeyValuePair[V], error) {
	if it.pos >= len(it.items) {
		return KeyValuePair[V]{}, errors.New("iterator exhausted")
	}
	return it.items[it.pos], nil
}

func (it *sliceIterator[V]) MoveNext() (bool, error) {
	it.pos++
	return it.pos < len(it.items), nil
}

type fakeStore struct {
	products      []KeyValuePair[StoreProduct]
	queryErr      error
	licenses      []KeyValuePair[StoreLicense]
	purchase      PurchaseResult
	lastProps     *PurchaseProperties
	purchaseCalls int
	hwnd          uintptr
}

func (s *fakeStore) InitializeWithWindow(hwnd uintptr) error {
	s.hwnd = hwnd
	return nil
}

func (s *fakeStore) GetStoreProducts(_ context.Context, _ []string, storeIDs []string) (*ProductQueryResult, error) {
	if s.queryErr != nil {
		return &ProductQueryResult{ExtendedError: s.queryErr}, nil
	}
	wanted := make(map[string]bool, len(storeIDs))
	for _, id := range storeIDs {
		wanted[id] = true
	}
	var matched []KeyValuePair[StoreProduct]
	for _, p := range s.products {
		if wanted[p.Key] {
			matched = append(matched, p)
		}
	}
	return &ProductQueryResult{Products: &sliceView[StoreProduct]{items: matched}}, nil
}

func (s *fakeStore) RequestPurchase(_ context.Context, _ string) (*PurchaseResult, error) {
	s.purchaseCalls++
	r := s.purchase
	return &r, nil
}

func (s *fakeStore) RequestPurchaseWithProperties(_ context.Context, _ string, props PurchaseProperties) (*PurchaseResult, error) {
	s.purchaseCalls++
	s.lastProps = &props
	r := s.purchase
	return &r, nil
}

func (s *fakeStore) GetAppLicense(context.Context) (*AppLicense, error) {
	return &AppLicense{AddOnLicenses: &sliceView[StoreLicense]{items: s.licenses}}, nil
}

type staticWindows struct{ hwnd uintptr }

func (w staticWindows) WindowHandle(string) (uintptr, error) {
	if w.hwnd == 0 {
		return 0, ErrWindowNotFound
	}
	return w.hwnd, nil
}

type mockSink struct {
	mock.Mock
}

func (m *mockSink) TriggerJSON(event string, v any) error {
	args := m.Called(event, v)
	return args.Error(0)
}

var fixedNow = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

func newTestBackend(store *fakeStore, sink backend.EventSink) *Backend {
	b := New(func() (StoreContext, error) { return store, nil }, staticWindows{hwnd: 42}, sink,
		Config{PackageName: "Example App"})
	b.now = func() time.Time { return fixedNow }
	return b
}

func monthlyProduct() KeyValuePair[StoreProduct] {
	return KeyValuePair[StoreProduct]{Key: "sku1", Value: StoreProduct{
		StoreID:     "sku1",
		Title:       "Premium",
		Description: "Premium monthly",
		Price:       StorePrice{FormattedPrice: "$9.99", FormattedBasePrice: "$9.99", CurrencyCode: "USD"},
		Skus: []StoreSku{
			{
				StoreID:          "sku1-0010",
				Price:            StorePrice{FormattedPrice: "$9.99"},
				SubscriptionInfo: &SubscriptionInfo{BillingPeriod: 1, BillingPeriodUnit: BillingPeriodMonth},
			},
			{StoreID: "sku1-0020", Price: StorePrice{FormattedPrice: "$9.99"}},
		},
	}}
}

func TestDateTimeToUnixMillis(t *testing.T) {
	assert.Equal(t, int64(0), DateTimeToUnixMillis(DateTime{UniversalTime: 116444736000000000}))
	assert.Equal(t, int64(1000), DateTimeToUnixMillis(DateTime{UniversalTime: 116444736000000000 + 10000000}))
	assert.Equal(t, int64(1700112000000), DateTimeToUnixMillis(DateTime{UniversalTime: 133445856000000000}))
	assert.Equal(t, int64(946684800000), DateTimeToUnixMillis(DateTime{UniversalTime: 125911584000000000}))
	assert.Equal(t, int64(4132214400000), DateTimeToUnixMillis(DateTime{UniversalTime: 157766880000000000}))
	assert.Equal(t, int64(-3153600000), DateTimeToUnixMillis(DateTime{UniversalTime: 116413200000000000}))
}

func TestDateTimeToUnixMillisTruncatesBelowMillisecond(t *testing.T) {
	epoch := int64(116444736000000000)
	assert.Equal(t, int64(500), DateTimeToUnixMillis(DateTime{UniversalTime: epoch + 5000000}))
	assert.Equal(t, int64(0), DateTimeToUnixMillis(DateTime{UniversalTime: epoch + 9999}))
	assert.Equal(t, int64(-1), DateTimeToUnixMillis(DateTime{UniversalTime: epoch - 1}))
}

func TestBillingPeriod(t *testing.T) {
	assert.Equal(t, "P3D", billingPeriod(SubscriptionInfo{BillingPeriod: 3, BillingPeriodUnit: BillingPeriodDay}))
	assert.Equal(t, "P1W", billingPeriod(SubscriptionInfo{BillingPeriod: 1, BillingPeriodUnit: BillingPeriodWeek}))
	assert.Equal(t, "P6M", billingPeriod(SubscriptionInfo{BillingPeriod: 6, BillingPeriodUnit: BillingPeriodMonth}))
	assert.Equal(t, "P1Y", billingPeriod(SubscriptionInfo{BillingPeriod: 1, BillingPeriodUnit: BillingPeriodYear}))
	assert.Equal(t, "P2M", billingPeriod(SubscriptionInfo{BillingPeriod: 2, BillingPeriodUnit: 9}))
}

func TestPriceMicros(t *testing.T) {
	assert.Equal(t, int64(9990000), priceMicros("$9.99"))
	assert.Equal(t, int64(4990000), priceMicros("4.99 €"))
	assert.Equal(t, int64(0), priceMicros("free"))
}

func TestGetProductsSubscription(t *testing.T) {
	store := &fakeStore{products: []KeyValuePair[StoreProduct]{monthlyProduct()}}
	b := newTestBackend(store, nil)

	resp, err := b.GetProducts(context.Background(), []string{"sku1"}, domain.ProductTypeSubs)
	require.NoError(t, err)
	require.Len(t, resp.Products, 1)

	p := resp.Products[0]
	assert.Equal(t, "sku1", p.ProductID)
	assert.Equal(t, domain.ProductTypeSubs, p.ProductType)
	assert.Equal(t, int64(9990000), *p.PriceAmountMicros)
	require.Len(t, p.SubscriptionOfferDetails, 1)

	offer := p.SubscriptionOfferDetails[0]
	assert.Equal(t, "sku1-0010", offer.OfferToken)
	assert.Nil(t, offer.OfferID)
	require.Len(t, offer.PricingPhases, 1)
	phase := offer.PricingPhases[0]
	assert.Equal(t, "P1M", phase.BillingPeriod)
	assert.Equal(t, int32(0), phase.BillingCycleCount)
	assert.Equal(t, int32(domain.RecurrenceInfinite), phase.RecurrenceMode)
	assert.Equal(t, "USD", phase.PriceCurrencyCode)

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"productType":"subs"`)
	assert.Contains(t, string(data), `"billingPeriod":"P1M"`)
	assert.Contains(t, string(data), `"billingCycleCount":0`)
	assert.Contains(t, string(data), `"recurrenceMode":1`)
	assert.Equal(t, uintptr(42), store.hwnd)
}

func TestGetProductsOneTimeHasNoOffers(t *testing.T) {
	store := &fakeStore{products: []KeyValuePair[StoreProduct]{monthlyProduct()}}
	b := newTestBackend(store, nil)

	resp, err := b.GetProducts(context.Background(), []string{"sku1"}, domain.ProductTypeInApp)
	require.NoError(t, err)
	require.Len(t, resp.Products, 1)
	assert.Nil(t, resp.Products[0].SubscriptionOfferDetails)
}

func TestGetProductsDrainsEveryElement(t *testing.T) {
	var products []KeyValuePair[StoreProduct]
	for _, id := range []string{"a", "b", "c"} {
		products = append(products, KeyValuePair[StoreProduct]{Key: id, Value: StoreProduct{StoreID: id}})
	}
	b := newTestBackend(&fakeStore{products: products}, nil)

	resp, err := b.GetProducts(context.Background(), []string{"a", "b", "c"}, domain.ProductTypeAny)
	require.NoError(t, err)
	require.Len(t, resp.Products, 3)
	assert.Equal(t, "c", resp.Products[2].ProductID)
}

func TestGetProductsQueryFailed(t *testing.T) {
	b := newTestBackend(&fakeStore{queryErr: errors.New("0x803F6107")}, nil)

	_, err := b.GetProducts(context.Background(), []string{"sku1"}, domain.ProductTypeSubs)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrQueryFailed)
	assert.Contains(t, err.Error(), "0x803F6107")
}

func TestPurchaseUnknownProduct(t *testing.T) {
	sink := new(mockSink)
	store := &fakeStore{}
	b := newTestBackend(store, sink)

	p, err := b.Purchase(context.Background(), domain.PurchaseRequest{ProductID: "missing", ProductType: domain.ProductTypeSubs})
	assert.Nil(t, p)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
	assert.Equal(t, 0, store.purchaseCalls)
	sink.AssertNotCalled(t, "TriggerJSON", mock.Anything, mock.Anything)
}

func TestPurchaseSucceeded(t *testing.T) {
	sink := new(mockSink)
	sink.On("TriggerJSON", domain.EventPurchaseUpdated, mock.AnythingOfType("*domain.Purchase")).Return(nil)
	store := &fakeStore{
		products: []KeyValuePair[StoreProduct]{monthlyProduct()},
		purchase: PurchaseResult{Status: StatusSucceeded},
	}
	b := newTestBackend(store, sink)

	p, err := b.Purchase(context.Background(), domain.PurchaseRequest{
		ProductID:       "sku1",
		ProductType:     domain.ProductTypeSubs,
		PurchaseOptions: domain.PurchaseOptions{OfferToken: domain.Ptr("sku1-0010")},
	})
	require.NoError(t, err)

	wantToken := "win_sku1_" + "1709294400000"
	assert.Equal(t, wantToken, p.PurchaseToken)
	assert.Equal(t, wantToken, *p.OrderID)
	assert.Equal(t, fixedNow.UnixMilli(), p.PurchaseTime)
	assert.Equal(t, domain.PurchaseStatePurchased, p.PurchaseState)
	assert.True(t, p.IsAutoRenewing)
	assert.True(t, p.IsAcknowledged)
	assert.Equal(t, "", p.Signature)
	assert.Nil(t, p.JWSRepresentation)
	assert.Equal(t, "Example App", p.PackageName)
	assert.JSONEq(t, `{"status":0,"message":"","productId":"sku1"}`, p.OriginalJSON)

	require.NotNil(t, store.lastProps)
	assert.JSONEq(t, `{"skuId":"sku1-0010"}`, store.lastProps.ExtendedJSONData)
	sink.AssertExpectations(t)
}

func TestPurchaseStatusMapping(t *testing.T) {
	cases := []struct {
		status StorePurchaseStatus
		want   error
	}{
		{StatusAlreadyPurchased, nil},
		{StatusNotPurchased, domain.ErrPurchaseIncomplete},
		{StatusNetworkError, domain.ErrNetworkError},
		{StatusServerError, domain.ErrServerError},
		{StorePurchaseStatus(17), domain.ErrPurchaseFailed},
	}
	for _, tc := range cases {
		sink := new(mockSink)
		sink.On("TriggerJSON", mock.Anything, mock.Anything).Return(nil).Maybe()
		store := &fakeStore{
			products: []KeyValuePair[StoreProduct]{monthlyProduct()},
			purchase: PurchaseResult{Status: tc.status},
		}
		b := newTestBackend(store, sink)

		p, err := b.Purchase(context.Background(), domain.PurchaseRequest{ProductID: "sku1", ProductType: domain.ProductTypeSubs})
		if tc.want == nil {
			require.NoError(t, err)
			assert.Equal(t, domain.PurchaseStatePurchased, p.PurchaseState)
			assert.Nil(t, store.lastProps)
			continue
		}
		assert.Nil(t, p)
		assert.ErrorIs(t, err, tc.want)
		sink.AssertNotCalled(t, "TriggerJSON", mock.Anything, mock.Anything)
	}
}

func expiry(ms int64) DateTime {
	return DateTime{UniversalTime: unixEpochTicks + ms*ticksPerMillisecond}
}

func TestRestorePurchasesKeepsActiveLicences(t *testing.T) {
	expiration := int64(1710000000000)
	store := &fakeStore{licenses: []KeyValuePair[StoreLicense]{
		{Key: "sku1", Value: StoreLicense{InAppOfferToken: "sku1", SkuStoreID: "sku1/0010", IsActive: true, ExpirationDate: expiry(expiration)}},
		{Key: "sku2", Value: StoreLicense{InAppOfferToken: "sku2", SkuStoreID: "sku2/0010", IsActive: false, ExpirationDate: expiry(expiration)}},
	}}
	b := newTestBackend(store, nil)

	resp, err := b.RestorePurchases(context.Background(), domain.ProductTypeSubs)
	require.NoError(t, err)
	require.Len(t, resp.Purchases, 1)

	p := resp.Purchases[0]
	assert.Equal(t, "sku1", p.ProductID)
	assert.Equal(t, "sku1/0010", p.PurchaseToken)
	assert.Equal(t, expiration-30*24*60*60*1000, p.PurchaseTime)
	assert.True(t, p.IsAutoRenewing)
	assert.Equal(t, "Example App", p.PackageName)
	assert.JSONEq(t, `{"isActive":true,"expirationDate":1710000000000}`, p.OriginalJSON)
}

func TestRestoreOneTimeUsesCurrentTime(t *testing.T) {
	store := &fakeStore{licenses: []KeyValuePair[StoreLicense]{
		{Key: "gems", Value: StoreLicense{InAppOfferToken: "gems", SkuStoreID: "gems/0010", IsActive: true}},
	}}
	b := newTestBackend(store, nil)

	resp, err := b.RestorePurchases(context.Background(), domain.ProductTypeInApp)
	require.NoError(t, err)
	require.Len(t, resp.Purchases, 1)
	assert.Equal(t, fixedNow.UnixMilli(), resp.Purchases[0].PurchaseTime)
	assert.False(t, resp.Purchases[0].IsAutoRenewing)
}

func TestGetProductStatus(t *testing.T) {
	expiration := int64(1710000000000)
	store := &fakeStore{licenses: []KeyValuePair[StoreLicense]{
		{Key: "sku1", Value: StoreLicense{InAppOfferToken: "sku1", SkuStoreID: "sku1/0010", IsActive: true, ExpirationDate: expiry(expiration)}},
		{Key: "old", Value: StoreLicense{InAppOfferToken: "old", SkuStoreID: "old/0010", IsActive: false}},
	}}
	b := newTestBackend(store, nil)
	ctx := context.Background()

	owned, err := b.GetProductStatus(ctx, "sku1", domain.ProductTypeSubs)
	require.NoError(t, err)
	assert.True(t, owned.IsOwned)
	assert.Equal(t, domain.PurchaseStatePurchased, *owned.PurchaseState)
	assert.Equal(t, expiration, *owned.ExpirationTime)
	assert.Equal(t, expiration-approxRenewalPeriod.Milliseconds(), *owned.PurchaseTime)
	assert.True(t, *owned.IsAutoRenewing)
	assert.Equal(t, "sku1/0010", *owned.PurchaseToken)

	expired, err := b.GetProductStatus(ctx, "old", domain.ProductTypeInApp)
	require.NoError(t, err)
	assert.False(t, expired.IsOwned)
	assert.Equal(t, domain.PurchaseStateCanceled, *expired.PurchaseState)
	assert.Nil(t, expired.ExpirationTime)

	never, err := b.GetProductStatus(ctx, "never", domain.ProductTypeSubs)
	require.NoError(t, err)
	data, err := json.Marshal(never)
	require.NoError(t, err)
	assert.JSONEq(t, `{"productId":"never","isOwned":false}`, string(data))
}

func TestAcknowledgeAndConsumeAreNoops(t *testing.T) {
	var created atomic.Int32
	b := New(func() (StoreContext, error) {
		created.Add(1)
		return &fakeStore{}, nil
	}, staticWindows{hwnd: 1}, nil, Config{})

	ack, err := b.AcknowledgePurchase(context.Background(), "tok")
	require.NoError(t, err)
	assert.True(t, ack.Success)
	consumed, err := b.ConsumePurchase(context.Background(), "tok")
	require.NoError(t, err)
	assert.True(t, consumed.Success)
	assert.Equal(t, int32(0), created.Load())
}

func TestSessionCreatedOnceUnderConcurrency(t *testing.T) {
	var created atomic.Int32
	store := &fakeStore{products: []KeyValuePair[StoreProduct]{monthlyProduct()}}
	b := New(func() (StoreContext, error) {
		created.Add(1)
		time.Sleep(5 * time.Millisecond)
		return store, nil
	}, staticWindows{hwnd: 7}, nil, Config{})

	var wg sync.WaitGroup
	sessions := make([]StoreContext, 16)
	for i := range sessions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sc, err := b.storeContext()
			if err == nil {
				sessions[i] = sc
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
	for _, sc := range sessions {
		assert.Same(t, store, sc)
	}
}

func TestSessionUnavailableWithoutWindow(t *testing.T) {
	b := New(func() (StoreContext, error) { return &fakeStore{}, nil }, staticWindows{}, nil, Config{})

	_, err := b.GetProducts(context.Background(), []string{"sku1"}, domain.ProductTypeSubs)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSessionUnavailable)
	assert.ErrorIs(t, err, ErrWindowNotFound)

	failing := New(func() (StoreContext, error) { return nil, errors.New("no store") }, staticWindows{hwnd: 1}, nil, Config{})
	_, err = failing.RestorePurchases(context.Background(), domain.ProductTypeSubs)
	assert.ErrorIs(t, err, domain.ErrSessionUnavailable)
}

func TestGetPurchaseHistoryUnsupported(t *testing.T) {
	b := newTestBackend(&fakeStore{}, nil)
	_, err := b.GetPurchaseHistory()
	assert.Equal(t, domain.KindUnsupportedPlatform, domain.KindOf(err))
}

func TestProductKinds(t *testing.T) {
	assert.Equal(t, []string{"Consumable", "UnmanagedConsumable"}, productKinds("inapp"))
	assert.Equal(t, []string{"Subscription", "Durable"}, productKinds("subs"))
	all := []string{"Consumable", "UnmanagedConsumable", "Durable", "Subscription"}
	assert.Equal(t, all, productKinds("any"))
	assert.Equal(t, all, productKinds("bundle"))
}
