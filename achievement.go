package main

import "github.com/rs/zerolog/log"

// AchievementDef describes one unlockable achievement.
type AchievementDef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	earned      func(s *StatsRow, run RunRecord) bool
}

var Achievements = []AchievementDef{
	{"first_kill", "First Kill", "Destroy your first raider",
		func(s *StatsRow, _ RunRecord) bool { return s.Kills >= 1 }},
	{"exterminator", "Exterminator", "Destroy 500 raiders",
		func(s *StatsRow, _ RunRecord) bool { return s.Kills >= 500 }},
	{"defender", "Defender", "Save your first planet",
		func(s *StatsRow, _ RunRecord) bool { return s.PlanetsSaved >= 1 }},
	{"guardian", "Guardian", "Save 25 planets",
		func(s *StatsRow, _ RunRecord) bool { return s.PlanetsSaved >= 25 }},
	{"combo_master", "Combo Master", "Chain a 5x kill combo",
		func(_ *StatsRow, run RunRecord) bool { return run.BestCombo >= 5 }},
	{"flawless", "Flawless Defense", "Save 3 planets in one run without losing any",
		func(_ *StatsRow, run RunRecord) bool { return run.PlanetsSaved >= 3 && run.PlanetsLost == 0 }},
	{"veteran", "Veteran", "Reach level 10",
		func(s *StatsRow, _ RunRecord) bool { return s.Level >= 10 }},
	{"elite", "Elite", "Reach level 25",
		func(s *StatsRow, _ RunRecord) bool { return s.Level >= 25 }},
	{"survivor", "Survivor", "Fly for 1 hour total",
		func(s *StatsRow, _ RunRecord) bool { return s.Playtime >= 3600 }},
}

// CheckAchievements unlocks whatever the pilot's lifetime stats and the run
// just recorded qualify for. It returns only the newly unlocked ones.
func CheckAchievements(db *DB, run RunRecord) []AchievementDef {
	if db == nil || run.PlayerID == 0 {
		return nil
	}

	stats, err := db.GetStats(run.PlayerID)
	if err != nil || stats == nil {
		return nil
	}
	existing, err := db.GetAchievements(run.PlayerID)
	if err != nil {
		return nil
	}
	has := make(map[string]bool, len(existing))
	for _, id := range existing {
		has[id] = true
	}

	var unlocked []AchievementDef
	for _, def := range Achievements {
		if has[def.ID] || !def.earned(stats, run) {
			continue
		}
		ok, err := db.UnlockAchievement(run.PlayerID, def.ID)
		if err != nil {
			log.Error().Err(err).Str("achievement", def.ID).Int64("player", run.PlayerID).Msg("unlock failed")
			continue
		}
		if ok {
			unlocked = append(unlocked, def)
		}
	}
	return unlocked
}
