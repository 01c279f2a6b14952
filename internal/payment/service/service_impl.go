package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/petlog/internal/clock"
	"github.com/smallbiznis/petlog/internal/lock"
	obsmetrics "github.com/smallbiznis/petlog/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/petlog/internal/payment/domain"
	"github.com/smallbiznis/petlog/internal/payment/gateway"
	"github.com/smallbiznis/petlog/internal/payment/ordercode"
	plandomain "github.com/smallbiznis/petlog/internal/plan/domain"
	"github.com/smallbiznis/petlog/internal/proration"
	"github.com/smallbiznis/petlog/internal/ratelimit"
	settingdomain "github.com/smallbiznis/petlog/internal/setting/domain"
	subscriptiondomain "github.com/smallbiznis/petlog/internal/subscription/domain"
	"github.com/smallbiznis/petlog/pkg/db"
	"github.com/smallbiznis/petlog/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	orderCodeAttempts = 5
	historyLimit      = 100
	revenueMonths     = 6

	sourceWebhook = "webhook"
	sourceReturn  = "return"
	sourceDirect  = "direct"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Repo          paymentdomain.Repository
	Plans         plandomain.Service
	Subscriptions subscriptiondomain.Service
	Settings      settingdomain.Service
	Gateways      *gateway.Registry
	Locker        lock.Locker
	LockOptions   lock.Options
	Limiter       *ratelimit.CheckoutLimiter `optional:"true"`
	Metrics       *obsmetrics.Metrics        `optional:"true"`
	OrderCodes    *ordercode.Generator       `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	repo          paymentdomain.Repository
	plans         plandomain.Service
	subscriptions subscriptiondomain.Service
	settings      settingdomain.Service
	gateways      *gateway.Registry
	locker        lock.Locker
	lockOpts      lock.Options
	limiter       *ratelimit.CheckoutLimiter
	metrics       *obsmetrics.Metrics
	orderCodes    *ordercode.Generator
}

func New(p Params) paymentdomain.Service {
	svcClock := p.Clock
	if svcClock == nil {
		svcClock = clock.SystemClock{}
	}
	codes := p.OrderCodes
	if codes == nil {
		codes = ordercode.New()
	}
	locker := p.Locker
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	opts := p.LockOptions
	if opts.TTL <= 0 {
		opts = lock.DefaultOptions()
	}
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("payment.service"),
		genID:         p.GenID,
		clock:         svcClock,
		repo:          p.Repo,
		plans:         p.Plans,
		subscriptions: p.Subscriptions,
		settings:      p.Settings,
		gateways:      p.Gateways,
		locker:        locker,
		lockOpts:      opts,
		limiter:       p.Limiter,
		metrics:       p.Metrics,
		orderCodes:    codes,
	}
}

func (s *Service) QuoteUpgrade(ctx context.Context, tenantID int64, planName string) (*proration.Quote, error) {
	if tenantID <= 0 {
		return nil, paymentdomain.ErrInvalidTenant
	}
	sub, err := s.subscriptions.GetByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	target, err := s.plans.GetActiveByName(ctx, planName)
	if err != nil {
		return nil, err
	}
	current, err := s.plans.Resolve(ctx, sub.Plan)
	if err != nil {
		return nil, err
	}
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}

	q, err := proration.QuoteUpgrade(sub.Window(), current, *target, settings, s.clock.Now())
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (s *Service) QuoteExtraRooms(ctx context.Context, tenantID int64, rooms int) (*proration.Quote, error) {
	if tenantID <= 0 {
		return nil, paymentdomain.ErrInvalidTenant
	}
	window, err := s.window(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}

	q, err := proration.QuoteExtraRooms(window, rooms, settings, s.clock.Now())
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (s *Service) QuoteRenewal(ctx context.Context, tenantID int64, planName string, months, extraRooms int) (*proration.Quote, error) {
	if tenantID <= 0 {
		return nil, paymentdomain.ErrInvalidTenant
	}
	target, err := s.plans.GetActiveByName(ctx, planName)
	if err != nil {
		return nil, err
	}
	window, err := s.window(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}

	q, err := proration.QuoteRenewal(*target, months, window.ExtraRooms, extraRooms, settings)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// window returns the tenant's billing window, or an empty one when the tenant
// has no subscription yet.
func (s *Service) window(ctx context.Context, tenantID int64) (proration.Window, error) {
	sub, err := s.subscriptions.GetByTenant(ctx, tenantID)
	if errors.Is(err, subscriptiondomain.ErrNotFound) {
		return proration.Window{}, nil
	}
	if err != nil {
		return proration.Window{}, err
	}
	return sub.Window(), nil
}

// order is a priced purchase waiting to be paid.
type order struct {
	purchase    paymentdomain.Purchase
	planName    string
	plan        *plandomain.Plan
	amount      int64
	description string
}

func (s *Service) Checkout(ctx context.Context, req paymentdomain.CheckoutRequest) (*paymentdomain.CheckoutResponse, error) {
	if req.TenantID <= 0 {
		return nil, paymentdomain.ErrInvalidTenant
	}
	if strings.TrimSpace(req.Plan) == "" {
		return nil, paymentdomain.ErrInvalidPlan
	}
	if s.limiter != nil {
		if _, err := s.limiter.Allow(ctx, req.TenantID); err != nil {
			return nil, err
		}
	}

	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	o, err := s.price(ctx, req, settings, now)
	if err != nil {
		return nil, err
	}

	if o.amount <= 0 {
		// Add-on rooms are never granted without a payment.
		if o.purchase.Kind == paymentdomain.KindExtraRooms {
			return nil, paymentdomain.ErrInvalidAmount
		}
		if err := s.grantDirect(ctx, req.TenantID, o, settings); err != nil {
			return nil, err
		}
		s.metrics.RecordConfirmation(ctx, sourceDirect, "applied")
		return &paymentdomain.CheckoutResponse{CheckoutURL: req.ReturnURL}, nil
	}

	gw, err := s.gateways.Default()
	if err != nil {
		return nil, err
	}

	payment, err := s.insertPending(ctx, req.TenantID, o, gw.Name(), now)
	if err != nil {
		return nil, err
	}

	checkout, err := gw.CreateOrder(ctx, paymentdomain.OrderRequest{
		OrderCode:   payment.OrderCode,
		Amount:      o.amount,
		Description: o.description,
		ReturnURL:   req.ReturnURL,
		CancelURL:   req.CancelURL,
		Items: []paymentdomain.OrderItem{{
			Name:     o.description,
			Quantity: 1,
			Price:    o.amount,
		}},
	})
	if err != nil {
		s.log.Error("create payment link failed",
			zap.Int64("tenant_id", req.TenantID),
			zap.Int64("order_code", payment.OrderCode),
			zap.String("gateway", gw.Name()),
			zap.Error(err),
		)
		s.metrics.RecordCheckout(ctx, gw.Name(), "failed", 0)
		if errors.Is(err, paymentdomain.ErrGatewayFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrGatewayFailed, err)
	}

	url := checkout.URL
	var reference *string
	if checkout.Reference != "" {
		reference = &checkout.Reference
	}
	if err := s.repo.UpdateCheckout(ctx, s.db, int64(payment.ID), &url, reference, jsonOrNil(checkout.Raw), s.clock.Now()); err != nil {
		return nil, err
	}
	s.metrics.RecordCheckout(ctx, gw.Name(), string(o.purchase.Kind), o.amount)

	s.log.Info("checkout created",
		zap.Int64("tenant_id", req.TenantID),
		zap.Int64("order_code", payment.OrderCode),
		zap.String("kind", string(o.purchase.Kind)),
		zap.Int64("amount", o.amount),
	)
	return &paymentdomain.CheckoutResponse{
		CheckoutURL: url,
		OrderCode:   payment.OrderCode,
		Amount:      o.amount,
	}, nil
}

func (s *Service) price(ctx context.Context, req paymentdomain.CheckoutRequest, settings proration.Settings, now time.Time) (*order, error) {
	name := strings.ToLower(strings.TrimSpace(req.Plan))

	if name == plandomain.NameExtraRooms {
		window, err := s.window(ctx, req.TenantID)
		if err != nil {
			return nil, err
		}
		q, err := proration.QuoteExtraRooms(window, req.Rooms, settings, now)
		if err != nil {
			return nil, err
		}
		return &order{
			purchase:    paymentdomain.Purchase{Kind: paymentdomain.KindExtraRooms, Rooms: req.Rooms},
			planName:    plandomain.NameExtraRooms,
			amount:      q.Amount,
			description: fmt.Sprintf("PetLog %d extra rooms", req.Rooms),
		}, nil
	}

	if req.ExtraRooms < 0 {
		return nil, proration.ErrInvalidRooms
	}
	target, err := s.plans.GetActiveByName(ctx, name)
	if err != nil {
		return nil, err
	}

	if req.Upgrade {
		sub, err := s.subscriptions.GetByTenant(ctx, req.TenantID)
		if err != nil {
			return nil, err
		}
		current, err := s.plans.Resolve(ctx, sub.Plan)
		if err != nil {
			return nil, err
		}
		window := sub.Window()
		q, err := proration.QuoteUpgrade(window, current, *target, settings, now)
		if err != nil {
			return nil, err
		}

		if q.Type == proration.QuoteTypeUpgrade {
			amount := q.Amount
			if req.ExtraRooms > 0 {
				rooms, err := proration.QuoteExtraRooms(window, req.ExtraRooms, settings, now)
				if err != nil {
					return nil, err
				}
				amount, err = proration.SumAmounts(amount, rooms.Amount)
				if err != nil {
					return nil, err
				}
			}
			return &order{
				purchase:    paymentdomain.Purchase{Kind: paymentdomain.KindUpgrade, BundledRooms: req.ExtraRooms},
				planName:    target.Name,
				plan:        target,
				amount:      amount,
				description: "PetLog upgrade " + target.Name,
			}, nil
		}

		// Nothing left to prorate, so the upgrade is a fresh month.
		rooms, err := proration.RoomsCost(req.ExtraRooms, 1, settings)
		if err != nil {
			return nil, err
		}
		amount, err := proration.SumAmounts(q.Amount, proration.RoundUp(rooms, settings.RoundingUnit))
		if err != nil {
			return nil, err
		}
		return &order{
			purchase:    paymentdomain.Purchase{Kind: paymentdomain.KindRenewal, Months: 1, BundledRooms: req.ExtraRooms},
			planName:    target.Name,
			plan:        target,
			amount:      amount,
			description: fmt.Sprintf("PetLog %s 1m", target.Name),
		}, nil
	}

	months := req.Months
	if months == 0 {
		months = 1
	}
	window, err := s.window(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	q, err := proration.QuoteRenewal(*target, months, window.ExtraRooms, req.ExtraRooms, settings)
	if err != nil {
		return nil, err
	}
	return &order{
		purchase:    paymentdomain.Purchase{Kind: paymentdomain.KindRenewal, Months: months, BundledRooms: req.ExtraRooms},
		planName:    target.Name,
		plan:        target,
		amount:      q.Amount,
		description: fmt.Sprintf("PetLog %s %dm", target.Name, months),
	}, nil
}

func (s *Service) insertPending(ctx context.Context, tenantID int64, o *order, gatewayName string, now time.Time) (*paymentdomain.Payment, error) {
	floor, err := s.repo.LastOrderCode(ctx, s.db)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < orderCodeAttempts; attempt++ {
		payment := &paymentdomain.Payment{
			ID:         s.genID.Generate(),
			TenantID:   tenantID,
			OrderCode:  s.orderCodes.Next(now, floor),
			Amount:     o.amount,
			PlanName:   o.planName,
			Kind:       o.purchase.Kind,
			Months:     o.purchase.Months,
			RoomCount:  o.purchase.Rooms,
			ExtraRooms: o.purchase.BundledRooms,
			Status:     paymentdomain.StatusPending,
			Gateway:    gatewayName,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		err := s.repo.Insert(ctx, s.db, payment)
		if err == nil {
			return payment, nil
		}
		if !db.IsDuplicateKeyErr(err) {
			return nil, err
		}
		s.log.Debug("order code collision", zap.Int64("order_code", payment.OrderCode))
		s.orderCodes.Observe(payment.OrderCode)
	}
	return nil, paymentdomain.ErrInvalidOrderCode
}

func (s *Service) HandleWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) paymentdomain.WebhookResult {
	provider = strings.ToLower(strings.TrimSpace(provider))

	var (
		gw  paymentdomain.Gateway
		err error
	)
	if provider == "" {
		gw, err = s.gateways.Default()
	} else {
		gw, err = s.gateways.Get(provider)
	}
	if err != nil {
		s.log.Warn("webhook for unavailable gateway", zap.String("provider", provider), zap.Error(err))
		s.metrics.RecordWebhookEvent(ctx, provider, "no_gateway")
		return paymentdomain.WebhookResult{Success: false}
	}
	provider = gw.Name()

	event, err := gw.VerifyWebhook(ctx, payload, headers)
	switch {
	case errors.Is(err, paymentdomain.ErrEventIgnored):
		s.metrics.RecordWebhookEvent(ctx, provider, "ignored")
		return paymentdomain.WebhookResult{Success: true}
	case err != nil:
		s.log.Warn("webhook rejected", zap.String("provider", provider), zap.Error(err))
		s.metrics.RecordWebhookEvent(ctx, provider, "rejected")
		return paymentdomain.WebhookResult{Success: false}
	}

	if !event.Paid {
		s.log.Info("webhook reports unpaid order", zap.String("provider", provider), zap.Int64("order_code", event.OrderCode))
		s.metrics.RecordWebhookEvent(ctx, provider, "unpaid")
		return paymentdomain.WebhookResult{Success: true}
	}

	payment, err := s.repo.FindByOrderCode(ctx, s.db, event.OrderCode)
	if err != nil {
		s.log.Error("webhook lookup failed", zap.Int64("order_code", event.OrderCode), zap.Error(err))
		s.metrics.RecordWebhookEvent(ctx, provider, "error")
		return paymentdomain.WebhookResult{Success: false}
	}
	if payment == nil {
		s.log.Warn("webhook for unknown order", zap.String("provider", provider), zap.Int64("order_code", event.OrderCode))
		s.metrics.RecordWebhookEvent(ctx, provider, "unknown_order")
		return paymentdomain.WebhookResult{Success: false}
	}
	if payment.IsPaid() {
		s.metrics.RecordWebhookEvent(ctx, provider, "duplicate")
		return paymentdomain.WebhookResult{Success: true}
	}

	if _, err := s.confirm(ctx, payment, event.Raw, sourceWebhook); err != nil {
		s.log.Error("webhook confirmation failed",
			zap.Int64("tenant_id", payment.TenantID),
			zap.Int64("order_code", payment.OrderCode),
			zap.Error(err),
		)
		s.metrics.RecordWebhookEvent(ctx, provider, "error")
		return paymentdomain.WebhookResult{Success: false}
	}
	s.metrics.RecordWebhookEvent(ctx, provider, "confirmed")
	return paymentdomain.WebhookResult{Success: true}
}

func (s *Service) CheckPayment(ctx context.Context, tenantID, orderCode int64) (*paymentdomain.Response, error) {
	if tenantID <= 0 {
		return nil, paymentdomain.ErrInvalidTenant
	}
	if orderCode <= 0 {
		return nil, paymentdomain.ErrInvalidOrderCode
	}
	payment, err := s.repo.FindByOrderCode(ctx, s.db, orderCode)
	if err != nil {
		return nil, err
	}
	if payment == nil || payment.TenantID != tenantID {
		return nil, paymentdomain.ErrNotFound
	}
	if payment.IsPaid() {
		resp := toResponse(payment)
		return &resp, nil
	}

	if s.pollGateway(ctx, payment) {
		if _, err := s.confirm(ctx, payment, nil, sourceReturn); err != nil {
			return nil, err
		}
		payment, err = s.repo.FindByOrderCode(ctx, s.db, orderCode)
		if err != nil {
			return nil, err
		}
		if payment == nil {
			return nil, paymentdomain.ErrNotFound
		}
	}

	resp := toResponse(payment)
	return &resp, nil
}

// pollGateway reports whether the gateway says the order is paid. Gateway
// trouble is logged and treated as not paid yet.
func (s *Service) pollGateway(ctx context.Context, payment *paymentdomain.Payment) bool {
	gw, err := s.gateways.Get(payment.Gateway)
	if err != nil {
		s.log.Debug("gateway unavailable for status check", zap.String("gateway", payment.Gateway), zap.Error(err))
		return false
	}
	ref := paymentdomain.OrderRef{OrderCode: payment.OrderCode}
	if payment.GatewayRef != nil {
		ref.Reference = *payment.GatewayRef
	}
	status, err := gw.OrderStatus(ctx, ref)
	if err != nil {
		s.log.Warn("order status check failed",
			zap.Int64("order_code", payment.OrderCode),
			zap.String("gateway", gw.Name()),
			zap.Error(err),
		)
		return false
	}
	return status == paymentdomain.OrderPaid
}

// confirm marks the payment paid and grants the purchase exactly once. It
// reports whether this call was the one that applied it.
func (s *Service) confirm(ctx context.Context, payment *paymentdomain.Payment, raw []byte, source string) (bool, error) {
	purchase := payment.Purchase()
	plan, err := s.planFor(ctx, payment.PlanName, purchase)
	if err != nil {
		s.metrics.RecordConfirmation(ctx, source, "error")
		return false, err
	}
	settings, err := s.settings.Get(ctx)
	if err != nil {
		s.metrics.RecordConfirmation(ctx, source, "error")
		return false, err
	}

	release, err := lock.Acquire(ctx, s.locker, lock.TenantKey(payment.TenantID), s.lockOpts)
	if err != nil {
		s.metrics.RecordConfirmation(ctx, source, "error")
		return false, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn("release tenant lock failed", zap.Int64("tenant_id", payment.TenantID), zap.Error(err))
		}
	}()

	applied := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := s.repo.MarkPaid(ctx, tx, int64(payment.ID), jsonOrNil(raw), s.clock.Now())
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		applied = true
		return s.grant(ctx, tx, payment.TenantID, purchase, plan, settings)
	})
	if err != nil {
		s.metrics.RecordConfirmation(ctx, source, "error")
		return false, err
	}

	outcome := "duplicate"
	if applied {
		outcome = "applied"
		s.log.Info("payment confirmed",
			zap.String("source", source),
			zap.Int64("tenant_id", payment.TenantID),
			zap.Int64("order_code", payment.OrderCode),
			zap.String("kind", string(purchase.Kind)),
		)
	}
	s.metrics.RecordConfirmation(ctx, source, outcome)
	return applied, nil
}

// grantDirect applies a zero-amount purchase without a payment row.
func (s *Service) grantDirect(ctx context.Context, tenantID int64, o *order, settings proration.Settings) error {
	release, err := lock.Acquire(ctx, s.locker, lock.TenantKey(tenantID), s.lockOpts)
	if err != nil {
		return err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn("release tenant lock failed", zap.Int64("tenant_id", tenantID), zap.Error(err))
		}
	}()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.grant(ctx, tx, tenantID, o.purchase, o.plan, settings)
	})
}

// planFor resolves the catalog plan a renewal or upgrade activates. It runs
// outside the confirmation transaction.
func (s *Service) planFor(ctx context.Context, planName string, purchase paymentdomain.Purchase) (*plandomain.Plan, error) {
	if purchase.Kind == paymentdomain.KindExtraRooms {
		return nil, nil
	}
	ref, err := s.plans.Resolve(ctx, planName)
	if err != nil {
		return nil, err
	}
	if ref.Kind != plandomain.RefCatalog || ref.Plan == nil {
		return nil, nil
	}
	return ref.Plan, nil
}

func (s *Service) grant(ctx context.Context, tx *gorm.DB, tenantID int64, purchase paymentdomain.Purchase, plan *plandomain.Plan, settings proration.Settings) error {
	switch purchase.Kind {
	case paymentdomain.KindExtraRooms:
		_, err := s.subscriptions.AddExtraRooms(ctx, tx, tenantID, purchase.Rooms, settings)
		return err
	case paymentdomain.KindRenewal, paymentdomain.KindUpgrade:
		if plan == nil {
			s.log.Warn("paid plan no longer in catalog, activation skipped", zap.Int64("tenant_id", tenantID))
			return nil
		}
		_, err := s.subscriptions.Activate(ctx, tx, subscriptiondomain.ActivateRequest{
			TenantID:     tenantID,
			Plan:         *plan,
			Months:       purchase.Months,
			KeepExpiry:   purchase.Kind == paymentdomain.KindUpgrade,
			BundledRooms: purchase.BundledRooms,
			Settings:     settings,
		})
		return err
	default:
		s.log.Warn("unknown purchase kind", zap.Int64("tenant_id", tenantID), zap.String("kind", string(purchase.Kind)))
		return nil
	}
}

func (s *Service) History(ctx context.Context, tenantID int64) ([]paymentdomain.Response, error) {
	if tenantID <= 0 {
		return nil, paymentdomain.ErrInvalidTenant
	}
	items, err := s.repo.List(ctx, s.db, paymentdomain.ListFilter{TenantID: &tenantID, Limit: historyLimit})
	if err != nil {
		return nil, err
	}
	out := make([]paymentdomain.Response, 0, len(items))
	for _, item := range items {
		out = append(out, toResponse(item))
	}
	return out, nil
}

func (s *Service) ListPayments(ctx context.Context, req paymentdomain.ListRequest) (*paymentdomain.ListResponse, error) {
	filter := paymentdomain.ListFilter{TenantID: req.TenantID}

	if status := strings.ToLower(strings.TrimSpace(req.Status)); status != "" {
		st := paymentdomain.Status(status)
		if st != paymentdomain.StatusPending && st != paymentdomain.StatusPaid {
			return nil, paymentdomain.ErrInvalidStatus
		}
		filter.Status = &st
	}

	pageSize := req.Size()
	filter.Limit = pageSize + 1

	cursor, err := pagination.DecodeCursor(req.PageToken)
	if err != nil {
		return nil, paymentdomain.ErrInvalidCursor
	}
	if cursor != nil {
		filter.BeforeCreatedAt = &cursor.CreatedAt
		filter.BeforeID = cursor.ID
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}

	items, pageInfo, err := pagination.Page(items, pageSize, func(p *paymentdomain.Payment) pagination.Cursor {
		return pagination.Cursor{ID: int64(p.ID), CreatedAt: p.CreatedAt.UTC()}
	})
	if err != nil {
		return nil, err
	}

	out := make([]paymentdomain.Response, 0, len(items))
	for _, item := range items {
		out = append(out, toResponse(item))
	}
	return &paymentdomain.ListResponse{Items: out, PageInfo: pageInfo}, nil
}

func (s *Service) Revenue(ctx context.Context) (*paymentdomain.Revenue, error) {
	now := s.clock.Now().UTC()
	firstMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(revenueMonths - 1), 0)

	var (
		total, count int64
		recent       []paymentdomain.Payment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		total, count, err = s.repo.PaidTotals(gctx, s.db)
		return err
	})
	g.Go(func() error {
		var err error
		recent, err = s.repo.PaidSince(gctx, s.db, firstMonth)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	monthly := make([]paymentdomain.MonthlyAmount, revenueMonths)
	index := make(map[string]int, revenueMonths)
	for i := 0; i < revenueMonths; i++ {
		key := firstMonth.AddDate(0, i, 0).Format("2006-01")
		monthly[i] = paymentdomain.MonthlyAmount{Month: key}
		index[key] = i
	}
	for _, p := range recent {
		if p.PaidAt == nil {
			continue
		}
		if i, ok := index[p.PaidAt.UTC().Format("2006-01")]; ok {
			monthly[i].Amount += p.Amount
		}
	}

	return &paymentdomain.Revenue{
		TotalRevenue:   total,
		TotalPaid:      count,
		MonthlyRevenue: monthly,
	}, nil
}

func toResponse(p *paymentdomain.Payment) paymentdomain.Response {
	return paymentdomain.Response{
		ID:          p.ID.String(),
		TenantID:    p.TenantID,
		OrderCode:   p.OrderCode,
		Amount:      p.Amount,
		PlanName:    p.PlanName,
		Kind:        p.Kind,
		Months:      p.Months,
		RoomCount:   p.RoomCount,
		ExtraRooms:  p.ExtraRooms,
		Status:      p.Status,
		Gateway:     p.Gateway,
		CheckoutURL: p.CheckoutURL,
		CreatedAt:   p.CreatedAt,
		PaidAt:      p.PaidAt,
	}
}

func jsonOrNil(raw []byte) datatypes.JSON {
	if len(raw) == 0 {
		return nil
	}
	return datatypes.JSON(raw)
}
