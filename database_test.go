package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestXPCurve(t *testing.T) {
	assert.Equal(t, 0, XPForLevel(1))
	assert.Equal(t, 100, XPForLevel(2))
	assert.Equal(t, XPForLevel(3)-XPForLevel(2), XPToNextLevel(2))

	assert.Equal(t, 1, CalculateLevel(0))
	assert.Equal(t, 1, CalculateLevel(99))
	assert.Equal(t, 2, CalculateLevel(100))
	assert.Equal(t, maxLevel, CalculateLevel(1<<40))
}

func TestCreatePlayerAndLookup(t *testing.T) {
	db := openTestDB(t)

	id, err := db.CreatePlayer("ace", "hash")
	require.NoError(t, err)

	p, err := db.GetPlayerByUsername("ace")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, id, p.ID)
	assert.Empty(t, p.Paint)

	byID, err := db.GetPlayerByID(id)
	require.NoError(t, err)
	assert.Equal(t, "ace", byID.Username)

	missing, err := db.GetPlayerByUsername("nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)

	exists, err := db.UsernameExists("ace")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = db.CreatePlayer("ace", "other")
	assert.Error(t, err, "usernames are unique")

	stats, err := db.GetStats(id)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Level)
	assert.Zero(t, stats.Runs)
}

func TestRecordRun(t *testing.T) {
	db := openTestDB(t)
	id, err := db.CreatePlayer("ace", "hash")
	require.NoError(t, err)

	res, err := db.RecordRun(RunRecord{
		PlayerID:     id,
		SessionID:    "s1",
		Kills:        4,
		PlanetsSaved: 1,
		XP:           150,
		Credits:      40,
		BestCombo:    3,
		Duration:     90,
		Died:         true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.PrevLevel)
	assert.Equal(t, 2, res.Level)
	assert.Equal(t, 150, res.TotalXP)
	assert.Equal(t, 40, res.Credits)

	_, err = db.RecordRun(RunRecord{PlayerID: id, BestCombo: 2, PlanetsLost: 1, Duration: 10})
	require.NoError(t, err)

	stats, err := db.GetStats(id)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Runs)
	assert.Equal(t, 1, stats.Deaths)
	assert.Equal(t, 4, stats.Kills)
	assert.Equal(t, 1, stats.PlanetsSaved)
	assert.Equal(t, 1, stats.PlanetsLost)
	assert.Equal(t, 3, stats.BestCombo, "best combo keeps the maximum")
	assert.InDelta(t, 100.0, stats.Playtime, 1e-9)
}

func TestRecordRunUnknownPlayer(t *testing.T) {
	db := openTestDB(t)
	_, err := db.RecordRun(RunRecord{PlayerID: 42})
	assert.Error(t, err)
}

func TestLeaderboardOrdering(t *testing.T) {
	db := openTestDB(t)
	a, _ := db.CreatePlayer("alpha", "x")
	b, _ := db.CreatePlayer("bravo", "x")
	_, err := db.RecordRun(RunRecord{PlayerID: a, XP: 500, Kills: 1})
	require.NoError(t, err)
	_, err = db.RecordRun(RunRecord{PlayerID: b, XP: 100, Kills: 9, BestCombo: 4})
	require.NoError(t, err)

	byXP, err := db.GetLeaderboard("xp", 10)
	require.NoError(t, err)
	require.Len(t, byXP, 2)
	assert.Equal(t, "alpha", byXP[0].Username)
	assert.Equal(t, 2, byXP[1].Rank)

	byKills, err := db.GetLeaderboard("kills", 10)
	require.NoError(t, err)
	assert.Equal(t, "bravo", byKills[0].Username)

	byCombo, err := db.GetLeaderboard("combo", 1)
	require.NoError(t, err)
	require.Len(t, byCombo, 1)
	assert.Equal(t, 4, byCombo[0].BestCombo)

	// Unknown columns fall back to XP instead of reaching the query.
	injected, err := db.GetLeaderboard("xp; DROP TABLE stats", 10)
	require.NoError(t, err)
	assert.Equal(t, "alpha", injected[0].Username)
}

func TestSettings(t *testing.T) {
	db := openTestDB(t)
	assert.Empty(t, db.GetSetting("k"))
	require.NoError(t, db.SetSetting("k", "v1"))
	require.NoError(t, db.SetSetting("k", "v2"))
	assert.Equal(t, "v2", db.GetSetting("k"))
}

func TestAchievementUnlockIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	id, _ := db.CreatePlayer("ace", "x")

	ok, err := db.UnlockAchievement(id, "first_kill")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = db.UnlockAchievement(id, "first_kill")
	require.NoError(t, err)
	assert.False(t, ok)

	ids, err := db.GetAchievements(id)
	require.NoError(t, err)
	assert.Equal(t, []string{"first_kill"}, ids)
}

func TestPurchaseAndEquip(t *testing.T) {
	db := openTestDB(t)
	id, _ := db.CreatePlayer("ace", "x")

	_, err := db.Purchase(id, "paint_ocean", 25)
	assert.ErrorIs(t, err, ErrInsufficientCredits)

	_, err = db.RecordRun(RunRecord{PlayerID: id, Credits: 60})
	require.NoError(t, err)

	left, err := db.Purchase(id, "paint_ocean", 25)
	require.NoError(t, err)
	assert.Equal(t, 35, left)

	_, err = db.Purchase(id, "paint_ocean", 25)
	assert.ErrorIs(t, err, ErrAlreadyOwned)

	left, err = db.Purchase(id, "paint_sunset", 50)
	assert.ErrorIs(t, err, ErrInsufficientCredits)
	assert.Zero(t, left)

	p, _ := db.GetPlayerByID(id)
	assert.Equal(t, "paint_ocean", p.Paint)

	assert.Error(t, db.Equip(id, "paint_sunset"), "cannot equip an unowned paint")
	require.NoError(t, db.Equip(id, "paint_ocean"))

	inv, err := db.Inventory(id)
	require.NoError(t, err)
	assert.Equal(t, []string{"paint_ocean"}, inv)
}
