package service

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/petlog/internal/clock"
	"github.com/smallbiznis/petlog/internal/config"
	"github.com/smallbiznis/petlog/internal/lock"
	obsmetrics "github.com/smallbiznis/petlog/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/petlog/internal/payment/domain"
	"github.com/smallbiznis/petlog/internal/payment/gateway"
	paymentrepo "github.com/smallbiznis/petlog/internal/payment/repository"
	plandomain "github.com/smallbiznis/petlog/internal/plan/domain"
	planrepo "github.com/smallbiznis/petlog/internal/plan/repository"
	planservice "github.com/smallbiznis/petlog/internal/plan/service"
	"github.com/smallbiznis/petlog/internal/proration"
	settingdomain "github.com/smallbiznis/petlog/internal/setting/domain"
	settingservice "github.com/smallbiznis/petlog/internal/setting/service"
	subscriptiondomain "github.com/smallbiznis/petlog/internal/subscription/domain"
	subscriptionrepo "github.com/smallbiznis/petlog/internal/subscription/repository"
	subscriptionservice "github.com/smallbiznis/petlog/internal/subscription/service"
	"github.com/smallbiznis/petlog/pkg/db/dbtest"
	"github.com/smallbiznis/petlog/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var start = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

const tenantID int64 = 7

// fakeGateway records orders and answers with canned outcomes.
type fakeGateway struct {
	mu        sync.Mutex
	orders    []paymentdomain.OrderRequest
	createErr error
	status    paymentdomain.OrderStatus
	statusErr error
	event     *paymentdomain.WebhookEvent
	verifyErr error
}

func (f *fakeGateway) Name() string { return "fake" }

func (f *fakeGateway) CreateOrder(_ context.Context, req paymentdomain.OrderRequest) (*paymentdomain.Checkout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.orders = append(f.orders, req)
	code := strconv.FormatInt(req.OrderCode, 10)
	return &paymentdomain.Checkout{
		URL:       "https://pay.example/" + code,
		Reference: "link-" + code,
		Raw:       []byte(`{"code":"00"}`),
	}, nil
}

func (f *fakeGateway) VerifyWebhook(context.Context, []byte, http.Header) (*paymentdomain.WebhookEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return f.event, nil
}

func (f *fakeGateway) OrderStatus(context.Context, paymentdomain.OrderRef) (paymentdomain.OrderStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, f.statusErr
}

func (f *fakeGateway) paidEvent(orderCode int64) {
	f.mu.Lock()
	f.event = &paymentdomain.WebhookEvent{OrderCode: orderCode, Paid: true, Raw: []byte(`{"paid":true}`)}
	f.verifyErr = nil
	f.mu.Unlock()
}

type fakeFactory struct{ gw *fakeGateway }

func (f fakeFactory) Provider() string { return "fake" }
func (f fakeFactory) New(config.PaymentConfig, *zap.Logger) (paymentdomain.Gateway, error) {
	return f.gw, nil
}

type fixture struct {
	svc   *Service
	db    *gorm.DB
	gw    *fakeGateway
	clock *clock.FakeClock
	subs  subscriptiondomain.Service
	plans plandomain.Service
	repo  paymentdomain.Repository
}

func newFixture(t *testing.T, provider string) fixture {
	t.Helper()
	conn := dbtest.Open(t,
		&paymentdomain.Payment{},
		&subscriptiondomain.Subscription{},
		&plandomain.Plan{},
		&settingdomain.SystemConfig{},
	)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(start)

	plans := planservice.New(planservice.Params{DB: conn, Log: zap.NewNop(), GenID: node, Repo: planrepo.Provide()})
	for _, req := range []plandomain.CreateRequest{
		{Name: "starter", DisplayName: "Starter", Price: 0, MaxRooms: 2, SortOrder: 0},
		{Name: "basic", DisplayName: "Basic", Price: 99000, MaxRooms: 5, SortOrder: 1},
		{Name: "pro", DisplayName: "Pro", Price: 199000, MaxRooms: 15, SortOrder: 2},
	} {
		_, err := plans.Create(context.Background(), req)
		require.NoError(t, err)
	}

	settings := settingservice.New(settingservice.Params{
		DB:      conn,
		Log:     zap.NewNop(),
		GenID:   node,
		Billing: config.NewStaticBillingConfigHolder(config.DefaultBillingConfig()),
	})
	subs := subscriptionservice.New(subscriptionservice.Params{
		DB:       conn,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    fake,
		Repo:     subscriptionrepo.Provide(),
		Settings: settings,
	})

	gw := &fakeGateway{status: paymentdomain.OrderPending}
	registry, err := gateway.NewRegistry(config.PaymentConfig{Provider: provider}, zap.NewNop(), fakeFactory{gw: gw})
	require.NoError(t, err)

	repo := paymentrepo.Provide()
	svc := New(Params{
		DB:            conn,
		Log:           zap.NewNop(),
		GenID:         node,
		Clock:         fake,
		Repo:          repo,
		Plans:         plans,
		Subscriptions: subs,
		Settings:      settings,
		Gateways:      registry,
		Locker:        lock.NewLocalLocker(),
		LockOptions:   lock.DefaultOptions(),
		Metrics:       obsmetrics.NewNoop(),
	}).(*Service)

	_, err = subs.StartTrial(context.Background(), tenantID)
	require.NoError(t, err)

	return fixture{svc: svc, db: conn, gw: gw, clock: fake, subs: subs, plans: plans, repo: repo}
}

func (f fixture) checkout(t *testing.T, req paymentdomain.CheckoutRequest) *paymentdomain.CheckoutResponse {
	t.Helper()
	if req.TenantID == 0 {
		req.TenantID = tenantID
	}
	req.ReturnURL = "http://app/dashboard/pricing?status=success"
	req.CancelURL = "http://app/dashboard/pricing?status=cancel"
	resp, err := f.svc.Checkout(context.Background(), req)
	require.NoError(t, err)
	return resp
}

func (f fixture) pay(t *testing.T, orderCode int64) {
	t.Helper()
	f.gw.paidEvent(orderCode)
	res := f.svc.HandleWebhook(context.Background(), "fake", []byte(`{}`), http.Header{})
	require.True(t, res.Success)
}

func (f fixture) payment(t *testing.T, orderCode int64) *paymentdomain.Payment {
	t.Helper()
	p, err := f.repo.FindByOrderCode(context.Background(), f.db, orderCode)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p
}

func (f fixture) subscription(t *testing.T) *subscriptiondomain.Subscription {
	t.Helper()
	sub, err := f.subs.GetByTenant(context.Background(), tenantID)
	require.NoError(t, err)
	return sub
}

func TestCheckoutRenewalCreatesPendingPayment(t *testing.T) {
	f := newFixture(t, "fake")

	resp := f.checkout(t, paymentdomain.CheckoutRequest{Plan: "basic", Months: 3})
	assert.Equal(t, int64(297000), resp.Amount)
	assert.Equal(t, start.UnixMilli(), resp.OrderCode)
	assert.Equal(t, "https://pay.example/"+strconv.FormatInt(resp.OrderCode, 10), resp.CheckoutURL)

	require.Len(t, f.gw.orders, 1)
	order := f.gw.orders[0]
	assert.Equal(t, resp.OrderCode, order.OrderCode)
	assert.Equal(t, int64(297000), order.Amount)
	assert.Contains(t, order.ReturnURL, "status=success")

	p := f.payment(t, resp.OrderCode)
	assert.Equal(t, paymentdomain.StatusPending, p.Status)
	assert.Equal(t, paymentdomain.KindRenewal, p.Kind)
	assert.Equal(t, 3, p.Months)
	assert.Equal(t, "fake", p.Gateway)
	require.NotNil(t, p.CheckoutURL)
	require.NotNil(t, p.GatewayRef)
	assert.Equal(t, "link-"+strconv.FormatInt(resp.OrderCode, 10), *p.GatewayRef)

	second := f.checkout(t, paymentdomain.CheckoutRequest{Plan: "basic", Months: 1})
	assert.Greater(t, second.OrderCode, resp.OrderCode)
}

func TestCheckoutValidation(t *testing.T) {
	f := newFixture(t, "fake")
	ctx := context.Background()

	_, err := f.svc.Checkout(ctx, paymentdomain.CheckoutRequest{TenantID: 0, Plan: "basic"})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidTenant)

	_, err = f.svc.Checkout(ctx, paymentdomain.CheckoutRequest{TenantID: tenantID, Plan: "gold"})
	assert.ErrorIs(t, err, plandomain.ErrNotFound)

	_, err = f.svc.Checkout(ctx, paymentdomain.CheckoutRequest{TenantID: tenantID, Plan: "basic", Months: 99})
	assert.ErrorIs(t, err, proration.ErrInvalidMonths)

	_, err = f.svc.Checkout(ctx, paymentdomain.CheckoutRequest{TenantID: tenantID, Plan: plandomain.NameExtraRooms, Rooms: 2})
	assert.ErrorIs(t, err, proration.ErrExtraRoomsRequirePaidPlan)
	assert.Empty(t, f.gw.orders)
}

func TestWebhookConfirmsOnceAndActivates(t *testing.T) {
	f := newFixture(t, "fake")
	resp := f.checkout(t, paymentdomain.CheckoutRequest{Plan: "basic", Months: 1})

	f.pay(t, resp.OrderCode)
	f.pay(t, resp.OrderCode)

	p := f.payment(t, resp.OrderCode)
	assert.Equal(t, paymentdomain.StatusPaid, p.Status)
	require.NotNil(t, p.PaidAt)

	sub := f.subscription(t)
	assert.Equal(t, "basic", sub.Plan)
	assert.Equal(t, 5, sub.MaxRooms)
	assert.True(t, sub.IsActive)
	require.NotNil(t, sub.ExpiresAt)
	assert.True(t, sub.ExpiresAt.Equal(start.AddDate(0, 0, 30)), "second delivery must not extend the term")
}

func TestWebhookOutcomes(t *testing.T) {
	f := newFixture(t, "fake")
	ctx := context.Background()

	f.gw.verifyErr = paymentdomain.ErrInvalidSignature
	assert.False(t, f.svc.HandleWebhook(ctx, "fake", []byte(`{}`), http.Header{}).Success)

	f.gw.verifyErr = paymentdomain.ErrEventIgnored
	assert.True(t, f.svc.HandleWebhook(ctx, "fake", []byte(`{}`), http.Header{}).Success)

	f.gw.paidEvent(123)
	assert.False(t, f.svc.HandleWebhook(ctx, "fake", []byte(`{}`), http.Header{}).Success, "unknown order")

	assert.False(t, f.svc.HandleWebhook(ctx, "stripe", []byte(`{}`), http.Header{}).Success, "unregistered provider")

	resp := f.checkout(t, paymentdomain.CheckoutRequest{Plan: "basic", Months: 1})
	f.gw.mu.Lock()
	f.gw.event = &paymentdomain.WebhookEvent{OrderCode: resp.OrderCode, Paid: false}
	f.gw.mu.Unlock()
	assert.True(t, f.svc.HandleWebhook(ctx, "", []byte(`{}`), http.Header{}).Success)
	assert.Equal(t, paymentdomain.StatusPending, f.payment(t, resp.OrderCode).Status)
}

func TestCheckPaymentPollsGateway(t *testing.T) {
	f := newFixture(t, "fake")
	ctx := context.Background()
	resp := f.checkout(t, paymentdomain.CheckoutRequest{Plan: "pro", Months: 1})

	got, err := f.svc.CheckPayment(ctx, tenantID, resp.OrderCode)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusPending, got.Status)

	f.gw.statusErr = errors.New("gateway down")
	got, err = f.svc.CheckPayment(ctx, tenantID, resp.OrderCode)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusPending, got.Status)

	_, err = f.svc.CheckPayment(ctx, tenantID+1, resp.OrderCode)
	assert.ErrorIs(t, err, paymentdomain.ErrNotFound)
	_, err = f.svc.CheckPayment(ctx, tenantID, 0)
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidOrderCode)

	f.gw.statusErr = nil
	f.gw.status = paymentdomain.OrderPaid
	got, err = f.svc.CheckPayment(ctx, tenantID, resp.OrderCode)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusPaid, got.Status)
	assert.Equal(t, "pro", f.subscription(t).Plan)

	// A webhook arriving after the return poll is acknowledged without reapplying.
	f.pay(t, resp.OrderCode)
	assert.True(t, f.subscription(t).ExpiresAt.Equal(start.AddDate(0, 0, 30)))
}

func TestExtraRoomsAfterActivation(t *testing.T) {
	f := newFixture(t, "fake")
	renewal := f.checkout(t, paymentdomain.CheckoutRequest{Plan: "basic", Months: 1})
	f.pay(t, renewal.OrderCode)

	f.clock.Advance(10 * 24 * time.Hour)
	quote, err := f.svc.QuoteExtraRooms(context.Background(), tenantID, 3)
	require.NoError(t, err)
	// 3 * 10000 * 20 / 30
	assert.Equal(t, int64(20000), quote.Amount)

	resp := f.checkout(t, paymentdomain.CheckoutRequest{Plan: plandomain.NameExtraRooms, Rooms: 3})
	assert.Equal(t, quote.Amount, resp.Amount)
	f.pay(t, resp.OrderCode)

	sub := f.subscription(t)
	assert.Equal(t, 3, sub.ExtraRooms)
	assert.Equal(t, 8, sub.RoomAllowance())

	p := f.payment(t, resp.OrderCode)
	assert.Equal(t, paymentdomain.KindExtraRooms, p.Kind)
	assert.Equal(t, 3, p.LegacyMonths())
}

func TestExtraRoomsNeverGrantedWithoutPayment(t *testing.T) {
	f := newFixture(t, "fake")
	renewal := f.checkout(t, paymentdomain.CheckoutRequest{Plan: "basic", Months: 1})
	f.pay(t, renewal.OrderCode)
	ordersBefore := len(f.gw.orders)
	ctx := context.Background()

	huge := int(math.MaxInt64/300000) + 1
	_, err := f.svc.Checkout(ctx, paymentdomain.CheckoutRequest{TenantID: tenantID, Plan: plandomain.NameExtraRooms, Rooms: huge})
	assert.ErrorIs(t, err, proration.ErrInvalidRooms)

	_, err = f.svc.Checkout(ctx, paymentdomain.CheckoutRequest{TenantID: tenantID, Plan: plandomain.NameExtraRooms, Rooms: 501})
	assert.ErrorIs(t, err, proration.ErrInvalidRooms)

	_, err = f.svc.Checkout(ctx, paymentdomain.CheckoutRequest{TenantID: tenantID, Plan: "basic", Months: 1, ExtraRooms: huge})
	assert.ErrorIs(t, err, proration.ErrInvalidRooms)

	_, err = f.svc.settings.Upsert(ctx, settingdomain.UpsertRequest{Key: settingdomain.KeyExtraRoomPrice, Value: "0"})
	require.NoError(t, err)
	_, err = f.svc.Checkout(ctx, paymentdomain.CheckoutRequest{TenantID: tenantID, Plan: plandomain.NameExtraRooms, Rooms: 2})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidAmount)

	assert.Len(t, f.gw.orders, ordersBefore)
	assert.Equal(t, 0, f.subscription(t).ExtraRooms)
}

func TestUpgradeKeepsExpiryAndBundlesRooms(t *testing.T) {
	f := newFixture(t, "fake")
	renewal := f.checkout(t, paymentdomain.CheckoutRequest{Plan: "basic", Months: 1})
	f.pay(t, renewal.OrderCode)
	expires := *f.subscription(t).ExpiresAt

	f.clock.Advance(10 * 24 * time.Hour)
	quote, err := f.svc.QuoteUpgrade(context.Background(), tenantID, "pro")
	require.NoError(t, err)
	assert.Equal(t, proration.QuoteTypeUpgrade, quote.Type)
	// ceil(100000 * 20 / 30) = 66667 -> 67000
	assert.Equal(t, int64(67000), quote.Amount)

	resp := f.checkout(t, paymentdomain.CheckoutRequest{Plan: "pro", Upgrade: true, ExtraRooms: 1})
	// plus one room for 20 days: ceil(10000*20/30) -> 7000
	assert.Equal(t, int64(74000), resp.Amount)
	f.pay(t, resp.OrderCode)

	sub := f.subscription(t)
	assert.Equal(t, "pro", sub.Plan)
	assert.Equal(t, 15, sub.MaxRooms)
	assert.Equal(t, 1, sub.ExtraRooms)
	assert.True(t, sub.ExpiresAt.Equal(expires))

	_, err = f.svc.QuoteUpgrade(context.Background(), tenantID, "basic")
	assert.ErrorIs(t, err, proration.ErrDowngradeNotAllowed)
}

func TestUpgradeFromTrialIsFreshMonth(t *testing.T) {
	f := newFixture(t, "fake")

	resp := f.checkout(t, paymentdomain.CheckoutRequest{Plan: "pro", Upgrade: true})
	assert.Equal(t, int64(199000), resp.Amount)

	p := f.payment(t, resp.OrderCode)
	assert.Equal(t, paymentdomain.KindRenewal, p.Kind)
	assert.Equal(t, 1, p.Months)

	f.pay(t, resp.OrderCode)
	sub := f.subscription(t)
	assert.Equal(t, "pro", sub.Plan)
	assert.True(t, sub.ExpiresAt.Equal(start.AddDate(0, 0, 30)))
}

func TestZeroAmountActivatesDirectly(t *testing.T) {
	f := newFixture(t, "fake")

	resp := f.checkout(t, paymentdomain.CheckoutRequest{Plan: "starter", Months: 1})
	assert.Equal(t, int64(0), resp.Amount)
	assert.Equal(t, int64(0), resp.OrderCode)
	assert.Equal(t, "http://app/dashboard/pricing?status=success", resp.CheckoutURL)
	assert.Empty(t, f.gw.orders)

	sub := f.subscription(t)
	assert.Equal(t, "starter", sub.Plan)
	assert.True(t, sub.IsActive)
}

func TestGatewayFailureKeepsPendingRow(t *testing.T) {
	f := newFixture(t, "fake")
	f.gw.createErr = errors.New("connection refused")

	_, err := f.svc.Checkout(context.Background(), paymentdomain.CheckoutRequest{TenantID: tenantID, Plan: "basic", Months: 1})
	require.ErrorIs(t, err, paymentdomain.ErrGatewayFailed)

	items, err := f.svc.History(context.Background(), tenantID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, paymentdomain.StatusPending, items[0].Status)
	assert.Nil(t, items[0].CheckoutURL)
}

func TestCheckoutWithoutConfiguredGateway(t *testing.T) {
	f := newFixture(t, "payos")

	_, err := f.svc.Checkout(context.Background(), paymentdomain.CheckoutRequest{TenantID: tenantID, Plan: "basic", Months: 1})
	assert.ErrorIs(t, err, paymentdomain.ErrGatewayNotConfigured)
}

func TestConfirmationSkipsRetiredPlan(t *testing.T) {
	f := newFixture(t, "fake")
	now := f.clock.Now()
	p := &paymentdomain.Payment{
		ID:        f.svc.genID.Generate(),
		TenantID:  tenantID,
		OrderCode: 555,
		Amount:    50000,
		PlanName:  "retired",
		Kind:      paymentdomain.KindRenewal,
		Months:    1,
		Status:    paymentdomain.StatusPending,
		Gateway:   "fake",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, f.repo.Insert(context.Background(), f.db, p))

	f.pay(t, 555)
	assert.Equal(t, paymentdomain.StatusPaid, f.payment(t, 555).Status)
	assert.Equal(t, plandomain.NameTrial, f.subscription(t).Plan)
}

func TestListPaymentsPaginates(t *testing.T) {
	f := newFixture(t, "fake")
	for i := 0; i < 5; i++ {
		f.checkout(t, paymentdomain.CheckoutRequest{Plan: "basic", Months: 1})
		f.clock.Advance(time.Minute)
	}

	req := paymentdomain.ListRequest{}
	req.PageSize = 2
	first, err := f.svc.ListPayments(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	assert.True(t, first.PageInfo.HasMore)
	require.NotEmpty(t, first.PageInfo.NextPageToken)

	req.PageToken = first.PageInfo.NextPageToken
	second, err := f.svc.ListPayments(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, second.Items, 2)
	assert.True(t, second.Items[0].CreatedAt.Before(first.Items[1].CreatedAt))

	req.PageToken = second.PageInfo.NextPageToken
	third, err := f.svc.ListPayments(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, third.Items, 1)
	assert.False(t, third.PageInfo.HasMore)
	assert.Empty(t, third.PageInfo.NextPageToken)

	_, err = f.svc.ListPayments(context.Background(), paymentdomain.ListRequest{Status: "refunded"})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidStatus)
	_, err = f.svc.ListPayments(context.Background(), paymentdomain.ListRequest{Pagination: pagination.Pagination{PageToken: "%%%"}})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidCursor)
}

func TestRevenue(t *testing.T) {
	f := newFixture(t, "fake")

	first := f.checkout(t, paymentdomain.CheckoutRequest{Plan: "basic", Months: 1})
	f.pay(t, first.OrderCode)

	f.clock.Advance(31 * 24 * time.Hour)
	second := f.checkout(t, paymentdomain.CheckoutRequest{Plan: "basic", Months: 1})
	f.pay(t, second.OrderCode)
	f.checkout(t, paymentdomain.CheckoutRequest{Plan: "pro", Months: 1})

	rev, err := f.svc.Revenue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(198000), rev.TotalRevenue)
	assert.Equal(t, int64(2), rev.TotalPaid)
	require.Len(t, rev.MonthlyRevenue, 6)
	assert.Equal(t, "2026-05", rev.MonthlyRevenue[5].Month)
	assert.Equal(t, int64(99000), rev.MonthlyRevenue[5].Amount)
	assert.Equal(t, "2026-04", rev.MonthlyRevenue[4].Month)
	assert.Equal(t, int64(99000), rev.MonthlyRevenue[4].Amount)
	assert.Equal(t, int64(0), rev.MonthlyRevenue[0].Amount)
}
