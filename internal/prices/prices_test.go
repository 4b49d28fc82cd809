package prices

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sokoprice/internal/confidence"
	"github.com/sells-group/sokoprice/internal/config"
	"github.com/sells-group/sokoprice/internal/model"
	"github.com/sells-group/sokoprice/internal/store"
	"github.com/sells-group/sokoprice/internal/store/storetest"
)

func newTestService(t *testing.T) (*Service, store.Store) {
	t.Helper()
	st := storetest.Seeded(t)
	engine := confidence.NewEngine(st, config.ConfidenceConfig{
		WindowHours: 48, ReliabilityWindowDays: 30, HighThreshold: 0.7, MediumThreshold: 0.4,
	})
	return NewService(st, engine), st
}

func TestSubmit_ResolvesByIDAndName(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	src := storetest.Source(t, st, "+254711000001", 0.8)

	p, err := svc.Submit(ctx, SubmitRequest{
		CropName:   "BEANS",
		MarketID:   storetest.Eldoret,
		SourceName: "reporter +254711000001",
		Price:      8500,
		Notes:      "  fresh stock ",
	})
	require.NoError(t, err)
	assert.Equal(t, storetest.Beans, p.CropID)
	assert.Equal(t, storetest.Eldoret, p.MarketID)
	assert.Equal(t, src.ID, p.SourceID)
	assert.False(t, p.Approved)
	assert.Equal(t, "fresh stock", p.Notes)
	assert.Equal(t, model.ChannelWeb, p.Channel)

	got, err := st.GetSource(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.SubmissionCount)
	assert.NotNil(t, got.LastSubmissionAt)
}

func TestSubmit_FallsBackToFirstAvailable(t *testing.T) {
	svc, st := newTestService(t)
	src := storetest.Source(t, st, "+254711000001", 0.8)

	p, err := svc.Submit(context.Background(), SubmitRequest{
		CropID:     "no-such-crop",
		CropName:   "Sorghum",
		MarketName: "Nowhere",
		Price:      100,
	})
	require.NoError(t, err)
	assert.Equal(t, storetest.Maize, p.CropID)
	assert.Equal(t, storetest.Wakulima, p.MarketID)
	assert.Equal(t, src.ID, p.SourceID)
}

func TestSubmit_Validation(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	for _, price := range []float64{0, -5, math.NaN(), math.Inf(1)} {
		_, err := svc.Submit(ctx, SubmitRequest{Price: price})
		var verr *model.ValidationError
		require.True(t, errors.As(err, &verr), "price %v", price)
		assert.Equal(t, "price", verr.Field)
	}

	// No sources registered yet.
	_, err := svc.Submit(ctx, SubmitRequest{Price: 100})
	var verr *model.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "source", verr.Field)

	_, total, err := st.ListPrices(ctx, model.PriceFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestSubmitFromPhone_RegistersSourceOnce(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	first, err := svc.SubmitFromPhone(ctx, "+254711009876", storetest.Maize, storetest.Wakulima, 500)
	require.NoError(t, err)
	second, err := svc.SubmitFromPhone(ctx, "+254711009876", storetest.Beans, storetest.Wakulima, 800)
	require.NoError(t, err)

	assert.Equal(t, first.SourceID, second.SourceID)
	assert.Equal(t, model.ChannelUSSD, first.Channel)
	assert.False(t, first.Approved)

	src, err := st.GetSourceByPhone(ctx, "+254711009876")
	require.NoError(t, err)
	require.NotNil(t, src)
	assert.Equal(t, "USSD User 9876", src.Name)
	assert.Equal(t, model.SourceRoleTrader, src.Role)
	assert.InDelta(t, model.DefaultReliability, src.ReliabilityScore, 1e-9)
	assert.Equal(t, 2, src.SubmissionCount)

	_, err = svc.SubmitFromPhone(ctx, "", storetest.Maize, storetest.Wakulima, 500)
	assert.Error(t, err)
}

func TestApproveAndReject_RecomputeReliability(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	src := storetest.Source(t, st, "+254711000001", 0.5)

	keep, err := svc.Submit(ctx, SubmitRequest{SourceID: src.ID, Price: 3500})
	require.NoError(t, err)
	drop, err := svc.Submit(ctx, SubmitRequest{SourceID: src.ID, Price: 9999})
	require.NoError(t, err)

	// 1 of 2 approved: 0.5*0.3 + 0.5*0.7 = 0.5.
	approved, err := svc.Approve(ctx, keep.ID)
	require.NoError(t, err)
	assert.True(t, approved.Approved)
	got, err := st.GetSource(ctx, src.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, got.ReliabilityScore, 1e-9)

	// 1 of 1 approved: 0.5*0.3 + 1*0.7 = 0.85.
	rejected, err := svc.Reject(ctx, drop.ID)
	require.NoError(t, err)
	assert.Equal(t, drop.ID, rejected.ID)
	got, err = st.GetSource(ctx, src.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.85, got.ReliabilityScore, 1e-9)

	gone, err := st.GetPrice(ctx, drop.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestApproveReject_NotFound(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Approve(ctx, "missing")
	assert.True(t, errors.Is(err, model.ErrNotFound))

	_, err = svc.Reject(ctx, "missing")
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestApprove_SourceGoneIsNotAnError(t *testing.T) {
	svc, st := newTestService(t)
	p := storetest.Price(t, st, model.PriceReport{
		CropID: storetest.Maize, MarketID: storetest.Wakulima, SourceID: "deleted-source", Price: 3000,
	}, false)

	_, err := svc.Approve(context.Background(), p.ID)
	assert.NoError(t, err)
}

func TestLatest(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	q, err := svc.Latest(ctx, storetest.Maize, storetest.Wakulima)
	require.NoError(t, err)
	assert.Nil(t, q, "no approved report is an empty result")

	src := storetest.Source(t, st, "+254711000001", 0.85)
	storetest.Price(t, st, model.PriceReport{
		CropID: storetest.Maize, MarketID: storetest.Wakulima, SourceID: src.ID, Price: 3500, Date: time.Now().Add(-time.Hour),
	}, true)
	// Pending reports count towards confidence but never become the quote.
	storetest.Price(t, st, model.PriceReport{
		CropID: storetest.Maize, MarketID: storetest.Wakulima, SourceID: src.ID, Price: 3400,
	}, false)

	q, err = svc.Latest(ctx, storetest.Maize, storetest.Wakulima)
	require.NoError(t, err)
	require.NotNil(t, q)
	assert.InDelta(t, 3500, q.Report.Price, 1e-9)
	assert.Equal(t, 2, q.Confidence.SubmissionCount)
	assert.InDelta(t, q.Confidence.Score, q.Report.ConfidenceScore, 1e-9)
	assert.Greater(t, q.Confidence.Score, 0.0)
	assert.Equal(t, confidence.DefaultThresholds().Tier(q.Confidence.Score), q.Tier)
}

func TestHistoryAndList(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	src := storetest.Source(t, st, "+254711000001", 0.9)

	now := time.Now()
	for i, price := range []float64{3300, 3400, 3500} {
		storetest.Price(t, st, model.PriceReport{
			CropID: storetest.Maize, MarketID: storetest.Wakulima, SourceID: src.ID,
			Price: price, Date: now.Add(-time.Duration(3-i) * time.Hour),
		}, true)
	}
	storetest.Price(t, st, model.PriceReport{
		CropID: storetest.Maize, MarketID: storetest.Wakulima, SourceID: src.ID,
		Price: 3000, Date: now.AddDate(0, 0, -45),
	}, true)

	history, err := svc.History(ctx, storetest.Maize, storetest.Wakulima, 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.InDelta(t, 3300, history[0].Price, 1e-9)

	reports, total, err := svc.List(ctx, model.PriceFilter{CropID: storetest.Maize})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	for _, r := range reports {
		assert.Greater(t, r.ConfidenceScore, 0.0)
	}
}
