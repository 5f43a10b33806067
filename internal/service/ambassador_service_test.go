package service

import (
	"context"
	"errors"
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/repository"
	"learnhub_backend/internal/testutil"
	"learnhub_backend/internal/util"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func validApplication() AmbassadorApplication {
	return AmbassadorApplication{
		College:    "ITB",
		Motivation: "help my classmates learn Go",
		ResumeKind: model.ResumeLink,
		ResumeURL:  "https://example.com/cv.pdf",
	}
}

// activeAmbassador 创建已通过审核的大使并设置积分
func activeAmbassador(t *testing.T, db *gorm.DB, svc *AmbassadorService, email string, points int) (*model.User, *model.AmbassadorProfile) {
	t.Helper()
	ctx := context.Background()
	user := testutil.CreateUser(t, db, email, model.Student)
	_, err := svc.Apply(ctx, user.ID, validApplication())
	require.NoError(t, err)
	p, err := svc.Review(ctx, user.ID, true)
	require.NoError(t, err)
	require.NoError(t, db.Model(&model.AmbassadorProfile{}).Where("id = ?", p.ID).Update("points", points).Error)
	p.Points = points
	return user, p
}

func createReward(t *testing.T, db *gorm.DB, name string, kind model.RewardKind, cost int) *model.RewardItem {
	t.Helper()
	item := &model.RewardItem{Name: name, Kind: kind, Cost: cost, Active: true}
	require.NoError(t, db.Create(item).Error)
	return item
}

func pointsOf(t *testing.T, db *gorm.DB, profileID uint) int {
	t.Helper()
	var p model.AmbassadorProfile
	require.NoError(t, db.First(&p, profileID).Error)
	return p.Points
}

func TestAmbassador_ApplyAndReview(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	svc := NewAmbassadorService(repository.NewAmbassadorRepository(db), 50)
	user := testutil.CreateUser(t, db, "amb@x.com", model.Student)

	p, err := svc.Profile(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AmbassadorNone, p.Status)

	bad := validApplication()
	bad.ResumeURL = "ftp://example.com/cv"
	_, err = svc.Apply(ctx, user.ID, bad)
	assert.ErrorIs(t, err, util.ErrValidation)

	p, err = svc.Apply(ctx, user.ID, validApplication())
	require.NoError(t, err)
	assert.Equal(t, model.AmbassadorPending, p.Status)
	assert.Nil(t, p.ReferralCode)

	_, err = svc.Apply(ctx, user.ID, validApplication())
	assert.ErrorIs(t, err, util.ErrAlreadyApplied)

	p, err = svc.Review(ctx, user.ID, false)
	require.NoError(t, err)
	assert.Equal(t, model.AmbassadorRejected, p.Status)

	_, err = svc.Review(ctx, user.ID, true)
	assert.ErrorIs(t, err, util.ErrInvalidTransition)

	// 被拒后可以重新申请
	_, err = svc.Apply(ctx, user.ID, validApplication())
	require.NoError(t, err)
	p, err = svc.Review(ctx, user.ID, true)
	require.NoError(t, err)
	assert.Equal(t, model.AmbassadorActive, p.Status)
	require.NotNil(t, p.ReferralCode)
	assert.Regexp(t, `^AMB[0-9A-F]{8}$`, *p.ReferralCode)

	_, err = svc.Review(ctx, 9999, true)
	assert.ErrorIs(t, err, util.ErrNotFound)
}

func TestAmbassador_ReferralCreditedOnce(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	svc := NewAmbassadorService(repository.NewAmbassadorRepository(db), 50)
	amb, p := activeAmbassador(t, db, svc, "amb@x.com", 0)
	newbie := testutil.CreateUser(t, db, "new@x.com", model.Student)

	ok, err := svc.RecordReferralSignup(ctx, *p.ReferralCode, newbie.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.RecordReferralSignup(ctx, " "+*p.ReferralCode+" ", newbie.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	// 不能推荐自己
	ok, err = svc.RecordReferralSignup(ctx, *p.ReferralCode, amb.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.RecordReferralSignup(ctx, "AMBDEADBEEF", newbie.ID)
	assert.ErrorIs(t, err, util.ErrNotFound)

	profile, err := svc.Profile(ctx, amb.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, profile.SignupCount)
	assert.Equal(t, 50, profile.Points)
}

func TestAmbassador_ConcurrentRedeemNeverOverdraws(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	svc := NewAmbassadorService(repository.NewAmbassadorRepository(db), 50)
	user, p := activeAmbassador(t, db, svc, "amb@x.com", 150)
	hoodie := createReward(t, db, "Hoodie", model.RewardMerch, 100)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		errs      []error
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Redeem(ctx, user.ID, RedeemRequest{RewardID: hoodie.ID, ShippingAddress: "Jl. Merdeka 1"})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			errs = append(errs, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	require.Len(t, errs, 1)
	assert.True(t, errors.Is(errs[0], util.ErrInsufficientPoints))
	assert.Equal(t, 50, pointsOf(t, db, p.ID))

	history, err := svc.History(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestAmbassador_VirtualRedeemIsIdempotent(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	svc := NewAmbassadorService(repository.NewAmbassadorRepository(db), 50)
	user, p := activeAmbassador(t, db, svc, "amb@x.com", 100)
	badge := createReward(t, db, "Discord Badge", model.RewardVirtual, 30)

	first, err := svc.Redeem(ctx, user.ID, RedeemRequest{RewardID: badge.ID})
	require.NoError(t, err)
	assert.Equal(t, model.RedemptionApproved, first.Status)

	second, err := svc.Redeem(ctx, user.ID, RedeemRequest{RewardID: badge.ID})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 70, pointsOf(t, db, p.ID))
}

func TestAmbassador_RedeemGuards(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	svc := NewAmbassadorService(repository.NewAmbassadorRepository(db), 50)
	user, p := activeAmbassador(t, db, svc, "amb@x.com", 500)
	stranger := testutil.CreateUser(t, db, "stranger@x.com", model.Student)
	shirt := createReward(t, db, "T-Shirt", model.RewardMerch, 200)

	_, err := svc.Redeem(ctx, stranger.ID, RedeemRequest{RewardID: shirt.ID, ShippingAddress: "addr"})
	assert.ErrorIs(t, err, util.ErrAmbassadorNotActive)

	_, err = svc.Redeem(ctx, user.ID, RedeemRequest{RewardID: shirt.ID, ShippingAddress: "  "})
	assert.ErrorIs(t, err, util.ErrValidation)

	_, err = svc.Redeem(ctx, user.ID, RedeemRequest{RewardID: 777})
	assert.ErrorIs(t, err, util.ErrNotFound)

	assert.Equal(t, 500, pointsOf(t, db, p.ID))
}

func TestAmbassador_RejectedRedemptionRefunds(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	svc := NewAmbassadorService(repository.NewAmbassadorRepository(db), 50)
	user, p := activeAmbassador(t, db, svc, "amb@x.com", 300)
	bottle := createReward(t, db, "Bottle", model.RewardMerch, 120)

	h1, err := svc.Redeem(ctx, user.ID, RedeemRequest{RewardID: bottle.ID, ShippingAddress: "addr"})
	require.NoError(t, err)
	h2, err := svc.Redeem(ctx, user.ID, RedeemRequest{RewardID: bottle.ID, ShippingAddress: "addr"})
	require.NoError(t, err)
	assert.Equal(t, 60, pointsOf(t, db, p.ID))

	rejected, err := svc.UpdateRedemptionStatus(ctx, h1.ID, model.RedemptionRejected)
	require.NoError(t, err)
	assert.Equal(t, model.RedemptionRejected, rejected.Status)
	assert.Equal(t, 180, pointsOf(t, db, p.ID))

	_, err = svc.UpdateRedemptionStatus(ctx, h1.ID, model.RedemptionShipped)
	assert.ErrorIs(t, err, util.ErrInvalidTransition)

	shipped, err := svc.UpdateRedemptionStatus(ctx, h2.ID, model.RedemptionShipped)
	require.NoError(t, err)
	assert.Equal(t, model.RedemptionShipped, shipped.Status)
	assert.Equal(t, 180, pointsOf(t, db, p.ID))

	_, err = svc.UpdateRedemptionStatus(ctx, h2.ID, model.RedemptionApproved)
	assert.ErrorIs(t, err, util.ErrValidation)
}
