package category

import "github.com/asakaida/warehouse/internal/entities"

// DefaultProfiles returns the built-in category profiles
func DefaultProfiles() []Profile {
	return []Profile{dexProfile()}
}

func dexProfile() Profile {
	nonNegativeInt := func(key string) Expectation {
		return Expectation{Key: key, Kind: entities.KindInteger, Constraint: "value >= 0"}
	}
	nonNegativeFloat := func(key string) Expectation {
		return Expectation{Key: key, Kind: entities.KindFloat, Constraint: "value >= 0.0"}
	}

	return Profile{
		Category: "dex",
		Expectations: []Expectation{
			{Key: "num_chains", Kind: entities.KindInteger, Constraint: "value >= 1"},
			nonNegativeInt("core_developers"),
			nonNegativeInt("code_commits"),
			nonNegativeFloat("total_value_locked"),
			nonNegativeInt("token_max_supply"),
			nonNegativeFloat("market_cap"),
			nonNegativeInt("daily_active_users"),
			nonNegativeInt("weekly_active_users"),
			nonNegativeFloat("daily_fees"),
			nonNegativeFloat("trading_volume"),
			nonNegativeInt("number_of_token_holders"),
		},
	}
}
