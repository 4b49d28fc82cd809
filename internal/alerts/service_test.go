package alerts

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sokoprice/internal/model"
	"github.com/sells-group/sokoprice/internal/store/storetest"
)

func TestService_CreateDefaultsAndNormalizes(t *testing.T) {
	svc := NewService(storetest.Seeded(t), "254")

	a, err := svc.Create(context.Background(), CreateRequest{
		PhoneNumber: "0711 000 001",
		CropID:      storetest.Maize,
		MarketID:    storetest.Wakulima,
		TargetPrice: 3000,
	})
	require.NoError(t, err)
	assert.Equal(t, "+254711000001", a.PhoneNumber)
	assert.Equal(t, model.DirectionAbove, a.Direction)
	assert.True(t, a.Active)
	assert.Nil(t, a.LastTriggeredAt)
}

func TestService_CreateValidation(t *testing.T) {
	svc := NewService(storetest.Seeded(t), "")
	ctx := context.Background()

	base := CreateRequest{PhoneNumber: "+254711000001", CropID: storetest.Maize, MarketID: storetest.Wakulima, TargetPrice: 1000}
	tests := []struct {
		name  string
		edit  func(r *CreateRequest)
		field string
	}{
		{"missing phone", func(r *CreateRequest) { r.PhoneNumber = "" }, "phone_number"},
		{"negative target", func(r *CreateRequest) { r.TargetPrice = -1 }, "target_price"},
		{"bad direction", func(r *CreateRequest) { r.Direction = "sideways" }, "direction"},
		{"unknown crop", func(r *CreateRequest) { r.CropID = "nope" }, "crop_id"},
		{"unknown market", func(r *CreateRequest) { r.MarketID = "nope" }, "market_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base
			tt.edit(&req)
			_, err := svc.Create(ctx, req)
			var verr *model.ValidationError
			require.True(t, errors.As(err, &verr), err)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	zero := base
	zero.TargetPrice = 0
	_, err := svc.Create(ctx, zero)
	assert.NoError(t, err, "a zero target is allowed")
}

func TestService_ListDeactivateDelete(t *testing.T) {
	svc := NewService(storetest.Seeded(t), "254")
	ctx := context.Background()

	a, err := svc.Create(ctx, CreateRequest{PhoneNumber: "+254711000001", CropID: storetest.Maize, MarketID: storetest.Wakulima, TargetPrice: 1})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateRequest{PhoneNumber: "+254711000002", CropID: storetest.Beans, MarketID: storetest.Eldoret, TargetPrice: 1, Direction: model.DirectionBelow})
	require.NoError(t, err)

	mine, err := svc.List(ctx, model.AlertFilter{PhoneNumber: "0711000001"})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, a.ID, mine[0].ID)

	off, err := svc.Deactivate(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, off.Active)

	active := true
	live, err := svc.List(ctx, model.AlertFilter{Active: &active})
	require.NoError(t, err)
	assert.Len(t, live, 1)

	require.NoError(t, svc.Delete(ctx, a.ID))
	err = svc.Delete(ctx, a.ID)
	assert.True(t, errors.Is(err, model.ErrNotFound))

	_, err = svc.Deactivate(ctx, "missing")
	assert.True(t, errors.Is(err, model.ErrNotFound))
}
