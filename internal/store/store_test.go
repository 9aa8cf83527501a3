package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tanner253/ClubPengu-sub005/internal/domain"
	"github.com/Tanner253/ClubPengu-sub005/internal/store/schema"
)

// =============================================================================
// Test Data Builders
// =============================================================================

func buildVacantSpace(spaceID string) schema.Space {
	return schema.Space{
		SpaceID:    spaceID,
		Position:   schema.Position{X: 10, Y: 0, Z: -4},
		AccessType: schema.AccessPublic,
	}
}

func buildReservedSpace(spaceID string) schema.Space {
	space := buildVacantSpace(spaceID)
	space.IsReserved = true
	return space
}

func buildClaim(wallet string, start time.Time) RentalClaim {
	return RentalClaim{
		Wallet:   wallet,
		Username: "penguin42",
		Flavor:   "frost",
		Start:    start,
		Due:      start.Add(24 * time.Hour),
	}
}

func seedSpaces(t *testing.T, st Store, spaces ...schema.Space) {
	t.Helper()
	require.NoError(t, st.UpsertSpaces(context.Background(), spaces))
}

// RunStoreTests exercises the Store contract against any implementation
func RunStoreTests(t *testing.T, initDB func(t *testing.T) Store, cleanupDB func(t *testing.T)) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("upsert seeds spaces and refresh keeps rental state", func(t *testing.T) {
		st := initDB(t)
		defer cleanupDB(t)

		seedSpaces(t, st, buildVacantSpace("space1"), buildReservedSpace("vip1"))
		require.NoError(t, st.ClaimSpace(ctx, "space1", buildClaim("0xAlice", now)))

		// Re-seeding with a moved layout must not disturb the rental
		moved := buildVacantSpace("space1")
		moved.Position = schema.Position{X: 99}
		seedSpaces(t, st, moved)

		space, err := st.GetSpace(ctx, "space1")
		require.NoError(t, err)
		require.NotNil(t, space)
		assert.Equal(t, float64(99), space.Position.X)
		assert.Equal(t, "0xAlice", space.Owner())
		assert.True(t, space.IsRented)
	})

	t.Run("get missing space returns nil without error", func(t *testing.T) {
		st := initDB(t)
		defer cleanupDB(t)

		space, err := st.GetSpace(ctx, "nowhere")
		require.NoError(t, err)
		assert.Nil(t, space)
	})

	t.Run("list spaces ordered by id", func(t *testing.T) {
		st := initDB(t)
		defer cleanupDB(t)

		seedSpaces(t, st, buildVacantSpace("space2"), buildVacantSpace("space1"), buildVacantSpace("space3"))

		spaces, err := st.ListSpaces(ctx)
		require.NoError(t, err)
		require.Len(t, spaces, 3)
		assert.Equal(t, "space1", spaces[0].SpaceID)
		assert.Equal(t, "space3", spaces[2].SpaceID)
	})

	t.Run("claim vacant space writes full rental state", func(t *testing.T) {
		st := initDB(t)
		defer cleanupDB(t)

		seedSpaces(t, st, buildVacantSpace("space1"))
		require.NoError(t, st.ClaimSpace(ctx, "space1", buildClaim("0xAlice", now)))

		space, err := st.GetSpace(ctx, "space1")
		require.NoError(t, err)
		assert.Equal(t, "0xAlice", space.Owner())
		assert.True(t, space.IsRented)
		assert.Equal(t, "frost", space.Flavor)
		require.NotNil(t, space.RentDueDate)
		assert.WithinDuration(t, now.Add(24*time.Hour), *space.RentDueDate, time.Second)
		require.NotNil(t, space.RentStatus)
		assert.Equal(t, schema.RentCurrent, *space.RentStatus)
	})

	t.Run("claim refuses occupied reserved and missing spaces", func(t *testing.T) {
		st := initDB(t)
		defer cleanupDB(t)

		seedSpaces(t, st, buildVacantSpace("space1"), buildReservedSpace("vip1"))
		require.NoError(t, st.ClaimSpace(ctx, "space1", buildClaim("0xAlice", now)))

		err := st.ClaimSpace(ctx, "space1", buildClaim("0xBob", now))
		assert.ErrorIs(t, err, domain.ErrSpaceTaken)

		err = st.ClaimSpace(ctx, "vip1", buildClaim("0xBob", now))
		assert.ErrorIs(t, err, domain.ErrSpaceTaken)

		err = st.ClaimSpace(ctx, "nowhere", buildClaim("0xBob", now))
		assert.ErrorIs(t, err, domain.ErrSpaceTaken)
	})

	t.Run("count active rentals skips reserved spaces", func(t *testing.T) {
		st := initDB(t)
		defer cleanupDB(t)

		seedSpaces(t, st, buildVacantSpace("space1"), buildVacantSpace("space2"), buildVacantSpace("space3"))
		require.NoError(t, st.ClaimSpace(ctx, "space1", buildClaim("0xAlice", now)))
		require.NoError(t, st.ClaimSpace(ctx, "space2", buildClaim("0xAlice", now)))
		require.NoError(t, st.ClaimSpace(ctx, "space3", buildClaim("0xBob", now)))

		count, err := st.CountActiveRentals(ctx, "0xAlice")
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)

		count, err = st.CountActiveRentals(ctx, "0xNobody")
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("renew rent advances due date and restores current status", func(t *testing.T) {
		st := initDB(t)
		defer cleanupDB(t)

		seedSpaces(t, st, buildVacantSpace("space1"))
		require.NoError(t, st.ClaimSpace(ctx, "space1", buildClaim("0xAlice", now)))

		firstDue := now.Add(24 * time.Hour)
		applied, err := st.MarkGracePeriod(ctx, "space1", firstDue)
		require.NoError(t, err)
		require.True(t, applied)

		newDue := firstDue.Add(24 * time.Hour)
		require.NoError(t, st.RenewRent(ctx, "space1", "0xAlice", newDue, now.Add(25*time.Hour)))

		space, err := st.GetSpace(ctx, "space1")
		require.NoError(t, err)
		assert.WithinDuration(t, newDue, *space.RentDueDate, time.Second)
		assert.Equal(t, schema.RentCurrent, *space.RentStatus)
	})

	t.Run("renew rent refuses non-owner", func(t *testing.T) {
		st := initDB(t)
		defer cleanupDB(t)

		seedSpaces(t, st, buildVacantSpace("space1"))
		require.NoError(t, st.ClaimSpace(ctx, "space1", buildClaim("0xAlice", now)))

		err := st.RenewRent(ctx, "space1", "0xBob", now.Add(48*time.Hour), now)
		assert.ErrorIs(t, err, domain.ErrNotOwner)
	})

	t.Run("release space returns it to vacant", func(t *testing.T) {
		st := initDB(t)
		defer cleanupDB(t)

		seedSpaces(t, st, buildVacantSpace("space1"))
		require.NoError(t, st.ClaimSpace(ctx, "space1", buildClaim("0xAlice", now)))
		require.NoError(t, st.ReleaseSpace(ctx, "space1", "0xAlice"))

		space, err := st.GetSpace(ctx, "space1")
		require.NoError(t, err)
		assert.Nil(t, space.OwnerWallet)
		assert.False(t, space.IsRented)
		assert.Nil(t, space.RentDueDate)
		assert.Nil(t, space.RentStatus)
		assert.Empty(t, space.Flavor)

		err = st.ReleaseSpace(ctx, "space1", "0xAlice")
		assert.ErrorIs(t, err, domain.ErrNotOwner)
	})

	t.Run("find overdue spaces uses a strict cutoff and skips reserved", func(t *testing.T) {
		st := initDB(t)
		defer cleanupDB(t)

		seedSpaces(t, st, buildVacantSpace("space1"), buildVacantSpace("space2"), buildReservedSpace("vip1"))
		require.NoError(t, st.ClaimSpace(ctx, "space1", buildClaim("0xAlice", now.Add(-48*time.Hour))))
		require.NoError(t, st.ClaimSpace(ctx, "space2", buildClaim("0xBob", now)))

		overdue, err := st.FindOverdueSpaces(ctx, now)
		require.NoError(t, err)
		require.Len(t, overdue, 1)
		assert.Equal(t, "space1", overdue[0].SpaceID)

		// Exactly at the due instant is not yet overdue
		overdue, err = st.FindOverdueSpaces(ctx, now.Add(-24*time.Hour))
		require.NoError(t, err)
		assert.Empty(t, overdue)
	})

	t.Run("grace and eviction are guarded by the observed due date", func(t *testing.T) {
		st := initDB(t)
		defer cleanupDB(t)

		seedSpaces(t, st, buildVacantSpace("space1"))
		require.NoError(t, st.ClaimSpace(ctx, "space1", buildClaim("0xAlice", now.Add(-48*time.Hour))))
		observedDue := now.Add(-24 * time.Hour)

		applied, err := st.MarkGracePeriod(ctx, "space1", observedDue)
		require.NoError(t, err)
		assert.True(t, applied)

		// A renewal moves the due date; the stale sweep writes become no-ops
		require.NoError(t, st.RenewRent(ctx, "space1", "0xAlice", now.Add(24*time.Hour), now))

		applied, err = st.MarkGracePeriod(ctx, "space1", observedDue)
		require.NoError(t, err)
		assert.False(t, applied)

		applied, err = st.EvictSpace(ctx, "space1", observedDue)
		require.NoError(t, err)
		assert.False(t, applied)

		space, err := st.GetSpace(ctx, "space1")
		require.NoError(t, err)
		assert.Equal(t, "0xAlice", space.Owner())
		assert.Equal(t, schema.RentCurrent, *space.RentStatus)
	})

	t.Run("evict clears ownership when the due date still matches", func(t *testing.T) {
		st := initDB(t)
		defer cleanupDB(t)

		seedSpaces(t, st, buildVacantSpace("space1"))
		require.NoError(t, st.ClaimSpace(ctx, "space1", buildClaim("0xAlice", now.Add(-48*time.Hour))))

		applied, err := st.EvictSpace(ctx, "space1", now.Add(-24*time.Hour))
		require.NoError(t, err)
		assert.True(t, applied)

		space, err := st.GetSpace(ctx, "space1")
		require.NoError(t, err)
		assert.Nil(t, space.OwnerWallet)
		assert.False(t, space.IsRented)
	})

	t.Run("append entry fee is idempotent per wallet", func(t *testing.T) {
		st := initDB(t)
		defer cleanupDB(t)

		seedSpaces(t, st, buildVacantSpace("space1"))
		require.NoError(t, st.ClaimSpace(ctx, "space1", buildClaim("0xAlice", now)))

		fee := schema.PaidEntryFee{WalletAddress: "0xVisitor", Amount: 500, TxSignature: "0xsig1", PaidAt: now}
		require.NoError(t, st.AppendEntryFee(ctx, "space1", fee))

		fee.TxSignature = "0xsig2"
		require.NoError(t, st.AppendEntryFee(ctx, "space1", fee))

		space, err := st.GetSpace(ctx, "space1")
		require.NoError(t, err)
		require.Len(t, space.PaidEntryFees, 1)
		assert.Equal(t, "0xsig1", space.PaidEntryFees[0].TxSignature)

		err = st.AppendEntryFee(ctx, "nowhere", fee)
		assert.ErrorIs(t, err, domain.ErrSpaceNotFound)
	})

	t.Run("update settings conditional on ownership", func(t *testing.T) {
		st := initDB(t)
		defer cleanupDB(t)

		seedSpaces(t, st, buildVacantSpace("space1"))
		require.NoError(t, st.ClaimSpace(ctx, "space1", buildClaim("0xAlice", now)))
		require.NoError(t, st.AppendEntryFee(ctx, "space1",
			schema.PaidEntryFee{WalletAddress: "0xVisitor", Amount: 500, TxSignature: "0xsig", PaidAt: now}))

		update := SettingsUpdate{
			AccessType: schema.AccessToken,
			TokenGate:  schema.TokenGate{Enabled: true, TokenAddress: "0xToken", MinimumBalance: 1000},
			Banner:     schema.Banner{Text: "welcome"},
		}

		err := st.UpdateSettings(ctx, "space1", "0xBob", update)
		assert.ErrorIs(t, err, domain.ErrNotOwner)

		require.NoError(t, st.UpdateSettings(ctx, "space1", "0xAlice", update))
		space, err := st.GetSpace(ctx, "space1")
		require.NoError(t, err)
		assert.Equal(t, schema.AccessToken, space.AccessType)
		assert.True(t, space.TokenGate.Enabled)
		assert.Equal(t, "welcome", space.Banner.Text)
		// Without the reset flag the paid set survives
		assert.Len(t, space.PaidEntryFees, 1)

		update.ResetEntryFees = true
		require.NoError(t, st.UpdateSettings(ctx, "space1", "0xAlice", update))
		space, err = st.GetSpace(ctx, "space1")
		require.NoError(t, err)
		assert.Empty(t, space.PaidEntryFees)
	})

	t.Run("visit and revenue counters accumulate", func(t *testing.T) {
		st := initDB(t)
		defer cleanupDB(t)

		seedSpaces(t, st, buildVacantSpace("space1"))
		require.NoError(t, st.RecordVisit(ctx, "space1"))
		require.NoError(t, st.RecordVisit(ctx, "space1"))
		require.NoError(t, st.AddRevenue(ctx, "space1", 500))
		require.NoError(t, st.AddRevenue(ctx, "space1", 250))

		space, err := st.GetSpace(ctx, "space1")
		require.NoError(t, err)
		assert.Equal(t, uint64(2), space.Visits)
		assert.Equal(t, uint64(750), space.RevenueCollected)
	})
}

func TestMemoryStore(t *testing.T) {
	RunStoreTests(t,
		func(t *testing.T) Store { return NewMemoryStore() },
		func(t *testing.T) {},
	)
}
