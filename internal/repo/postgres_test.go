package repo

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"founding-members/internal/database"
	"founding-members/internal/domain"
)

// newTestPostgres starts a throwaway Postgres and applies the schema.
func newTestPostgres(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("founding"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := database.NewPostgres(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.Migrate(ctx, db))
	return db
}

func TestPostgresMembership(t *testing.T) {
	db := newTestPostgres(t)
	ctx := context.Background()
	r := NewMembershipRepo(db)

	t.Run("sequence starts at 1001 and increases", func(t *testing.T) {
		for i, user := range []string{"u1", "u2", "u3"} {
			m := newMember(user)
			require.NoError(t, r.Create(ctx, m, 2030))
			assert.Equal(t, fmt.Sprintf("2030-%d", 1001+i), m.MemberNumber)
		}
		got, err := r.FindByUserId(ctx, "u2")
		require.NoError(t, err)
		assert.Equal(t, "2030-1002", got.MemberNumber)
		assert.Equal(t, domain.BadgeGold, got.Badge)
	})

	t.Run("duplicate user is rejected without consuming a number", func(t *testing.T) {
		err := r.Create(ctx, newMember("u1"), 2030)
		assert.ErrorIs(t, err, ErrAlreadyMember)

		m := newMember("u4")
		require.NoError(t, r.Create(ctx, m, 2030))
		assert.Equal(t, "2030-1004", m.MemberNumber)
	})

	t.Run("concurrent creates for different users never collide", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, r.Create(ctx, newMember(fmt.Sprintf("c%d", i)), 2031))
			}(i)
		}
		wg.Wait()

		list, err := r.ListByYear(ctx, 2031)
		require.NoError(t, err)
		require.Len(t, list, 20)
		for i, m := range list {
			assert.Equal(t, fmt.Sprintf("2031-%d", 1001+i), m.MemberNumber)
		}
	})

	t.Run("number taken outside the counter is skipped", func(t *testing.T) {
		_, err := db.ExecContext(ctx, `
			INSERT INTO founding_members (`+memberColumns+`)
			VALUES ('legacy', 'tier_1', '2032-1001', 4900, 'USD', 'gold', now(), true)`)
		require.NoError(t, err)

		err = r.Create(ctx, newMember("n1"), 2032)
		assert.ErrorIs(t, err, ErrMemberNumberTaken)

		m := newMember("n1")
		require.NoError(t, r.Create(ctx, m, 2032))
		assert.Equal(t, "2032-1002", m.MemberNumber)
	})

	t.Run("unknown user", func(t *testing.T) {
		got, err := r.FindByUserId(ctx, "nobody")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestPostgresProfileAndOrders(t *testing.T) {
	db := newTestPostgres(t)
	ctx := context.Background()

	profiles := NewProfileRepo(db)
	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, profiles.MarkFoundingMember(ctx, "u1", "2030-1001", now))
	p, err := profiles.FindByUserId(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, p.IsFoundingMember)
	assert.Equal(t, "2030-1001", p.FoundingMemberNumber)
	require.NotNil(t, p.PurchasedDate)
	assert.True(t, now.Equal(*p.PurchasedDate))

	orders := NewOrderRepo(db)
	o := &domain.PendingOrder{
		GatewayOrderID: "order_1", UserID: "u1", Tier: domain.TierTwo,
		Amount: 9900, Currency: "USD", Status: domain.OrderCreated, CreatedAt: now,
	}
	require.NoError(t, orders.CreateOrder(ctx, nil, o))
	require.NoError(t, orders.CreateOrder(ctx, nil, o))
	require.NoError(t, orders.UpdateOrderStatus(ctx, nil, "order_1", domain.OrderPaid))
	got, err := orders.FindById(ctx, "order_1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPaid, got.Status)
	assert.Equal(t, domain.TierTwo, got.Tier)

	payments := NewPaymentRepo(db)
	pay := &domain.Payment{ID: "pay_1", OrderID: "order_1", Amount: 9900, Currency: "USD", Status: domain.PaymentCaptured, CreatedAt: now}
	require.NoError(t, payments.RecordPayment(ctx, nil, "u1", pay, ChannelCallback))
	require.NoError(t, payments.RecordPayment(ctx, nil, "u1", pay, ChannelReconciliation))
	_, channel, err := payments.FindById(ctx, "pay_1")
	require.NoError(t, err)
	assert.Equal(t, ChannelCallback, channel)

	subs := NewSubscriptionRepo(db)
	require.NoError(t, subs.CreateSubscription(ctx, &domain.Subscription{
		GatewaySubscriptionID: "sub_1", UserID: "u1", PlanID: "plan_usd", Status: domain.SubscriptionCreated,
		Tier: domain.TierMonthlyUSD, Amount: 999, Currency: "USD", CreatedAt: now,
	}))
	sub, err := subs.FindById(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, "plan_usd", sub.PlanID)
}

func TestPostgresWritesFollowTransaction(t *testing.T) {
	db := newTestPostgres(t)
	ctx := context.Background()
	orders := NewOrderRepo(db)
	payments := NewPaymentRepo(db)
	now := time.Now().UTC().Truncate(time.Second)

	order := func(id string) *domain.PendingOrder {
		return &domain.PendingOrder{
			GatewayOrderID: id, UserID: "u1", Tier: domain.TierOne,
			Amount: 4900, Currency: "USD", Status: domain.OrderCreated, CreatedAt: now,
		}
	}
	pay := func(id, orderID string) *domain.Payment {
		return &domain.Payment{ID: id, OrderID: orderID, Amount: 4900, Currency: "USD", Status: domain.PaymentCaptured, CreatedAt: now}
	}

	t.Run("rolled back writes leave nothing", func(t *testing.T) {
		require.NoError(t, orders.CreateOrder(ctx, nil, order("order_rb")))

		tx, err := db.BeginTx(ctx, nil)
		require.NoError(t, err)
		require.NoError(t, payments.RecordPayment(ctx, tx, "u1", pay("pay_rb", "order_rb"), ChannelCallback))
		require.NoError(t, orders.UpdateOrderStatus(ctx, tx, "order_rb", domain.OrderPaid))
		require.NoError(t, tx.Rollback())

		p, _, err := payments.FindById(ctx, "pay_rb")
		require.NoError(t, err)
		assert.Nil(t, p)
		o, err := orders.FindById(ctx, "order_rb")
		require.NoError(t, err)
		assert.Equal(t, domain.OrderCreated, o.Status)
	})

	t.Run("committed writes land together", func(t *testing.T) {
		tx, err := db.BeginTx(ctx, nil)
		require.NoError(t, err)
		require.NoError(t, orders.CreateOrder(ctx, tx, order("order_ok")))
		require.NoError(t, payments.RecordPayment(ctx, tx, "u1", pay("pay_ok", "order_ok"), ChannelReconciliation))
		require.NoError(t, orders.UpdateOrderStatus(ctx, tx, "order_ok", domain.OrderPaid))
		require.NoError(t, tx.Commit())

		_, channel, err := payments.FindById(ctx, "pay_ok")
		require.NoError(t, err)
		assert.Equal(t, ChannelReconciliation, channel)
		o, err := orders.FindById(ctx, "order_ok")
		require.NoError(t, err)
		assert.Equal(t, domain.OrderPaid, o.Status)
	})
}
