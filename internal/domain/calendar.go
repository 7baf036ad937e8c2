package domain

// IsRushHour reports the two daily commuter peaks, 07-09 and 17-19 inclusive.
func IsRushHour(hour int) bool {
	return (hour >= 7 && hour <= 9) || (hour >= 17 && hour <= 19)
}

// LoadCandidates lists the passenger loads plausible for a day (1=Sunday) and hour.
func LoadCandidates(day, hour int) []PassengerLoad {
	switch {
	case IsWeekendDay(day):
		return []PassengerLoad{LoadLow, LoadNormal}
	case IsRushHour(hour):
		return []PassengerLoad{LoadHigh, LoadExtreme}
	default:
		return []PassengerLoad{LoadNormal}
	}
}

// EstimatePassengerLoad picks one value from LoadCandidates without randomness.
// Weekend daytime and the busiest peak hours take the heavier option.
func EstimatePassengerLoad(day, hour int) PassengerLoad {
	candidates := LoadCandidates(day, hour)
	if len(candidates) == 1 {
		return candidates[0]
	}
	if IsWeekendDay(day) {
		if hour >= 11 && hour <= 17 {
			return candidates[1]
		}
		return candidates[0]
	}
	if hour == 8 || hour == 18 {
		return candidates[1]
	}
	return candidates[0]
}

// IsHoliday approximates public holidays as weekend days.
func IsHoliday(day int) bool {
	return IsWeekendDay(day)
}

// SeasonalWeather lists the conditions typical for a month.
func SeasonalWeather(month int) []WeatherCondition {
	switch month {
	case 12, 1, 2:
		return []WeatherCondition{WeatherSnow, WeatherIce, WeatherRain, WeatherCloudy}
	case 6, 7, 8:
		return []WeatherCondition{WeatherClear, WeatherCloudy, WeatherRain}
	default:
		return []WeatherCondition{WeatherClear, WeatherCloudy, WeatherRain, WeatherHeavyRain, WeatherSnow, WeatherIce, WeatherFog, WeatherStorm}
	}
}
