package providers

import (
	"context"
	"math"
	"time"

	"skipper/internal/types"
)

// Solar zenith angles in degrees. Official sunrise/sunset uses the sun's
// center at 90.833 degrees (accounting for refraction and the solar disk);
// civil twilight uses 96 degrees.
const (
	zenithOfficial = 90.833
	zenithCivil    = 96.0
)

// SolarCalculator computes sunrise, sunset, and civil twilight times from
// coordinates using the NOAA solar position approximation. No network calls;
// results are accurate to a couple of minutes, which is plenty for a
// "will it be dark" check.
type SolarCalculator struct{}

// NewSolarCalculator creates a SolarCalculator.
func NewSolarCalculator() *SolarCalculator {
	return &SolarCalculator{}
}

// GetDaylight returns sun and civil twilight times for the given date and
// coordinates. Times carry the date's location. Errors only at latitudes
// where the sun does not rise or set on that date.
func (s *SolarCalculator) GetDaylight(_ context.Context, lat, lon float64, date time.Time) (*types.DaylightInfo, error) {
	sunriseUTC, sunsetUTC, ok := solarEventTimes(lat, lon, date, zenithOfficial)
	if !ok {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected,
			"sun does not rise or set at this latitude on this date", nil)
	}

	twilightBeginUTC, twilightEndUTC, ok := solarEventTimes(lat, lon, date, zenithCivil)
	if !ok {
		// Civil twilight never ends this far north/south; fall back to the
		// official times so the daylight check still has a boundary.
		twilightBeginUTC, twilightEndUTC = sunriseUTC, sunsetUTC
	}

	loc := date.Location()
	return &types.DaylightInfo{
		Sunrise:            sunriseUTC.In(loc),
		Sunset:             sunsetUTC.In(loc),
		CivilTwilightBegin: twilightBeginUTC.In(loc),
		CivilTwilightEnd:   twilightEndUTC.In(loc),
		DayLengthHours:     sunsetUTC.Sub(sunriseUTC).Hours(),
	}, nil
}

// solarEventTimes computes the UTC rise and set times for the given zenith
// angle on the given date. Returns ok=false when the sun never crosses the
// zenith (polar day or polar night).
func solarEventTimes(lat, lon float64, date time.Time, zenith float64) (rise, set time.Time, ok bool) {
	year, month, day := date.Date()
	dayOfYear := float64(date.YearDay())

	// Fractional year in radians, evaluated at solar noon.
	gamma := 2 * math.Pi / 365 * (dayOfYear - 1 + 0.5)

	// Equation of time in minutes and solar declination in radians
	// (NOAA low-accuracy formulas).
	eqTime := 229.18 * (0.000075 +
		0.001868*math.Cos(gamma) -
		0.032077*math.Sin(gamma) -
		0.014615*math.Cos(2*gamma) -
		0.040849*math.Sin(2*gamma))
	decl := 0.006918 -
		0.399912*math.Cos(gamma) +
		0.070257*math.Sin(gamma) -
		0.006758*math.Cos(2*gamma) +
		0.000907*math.Sin(2*gamma) -
		0.002697*math.Cos(3*gamma) +
		0.00148*math.Sin(3*gamma)

	latRad := lat * math.Pi / 180
	cosHA := (math.Cos(zenith*math.Pi/180) - math.Sin(latRad)*math.Sin(decl)) /
		(math.Cos(latRad) * math.Cos(decl))
	if cosHA < -1 || cosHA > 1 {
		return time.Time{}, time.Time{}, false
	}
	haDeg := math.Acos(cosHA) * 180 / math.Pi

	// Minutes past UTC midnight.
	riseMinutes := 720 - 4*(lon+haDeg) - eqTime
	setMinutes := 720 - 4*(lon-haDeg) - eqTime

	midnightUTC := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	rise = midnightUTC.Add(time.Duration(riseMinutes * float64(time.Minute)))
	set = midnightUTC.Add(time.Duration(setMinutes * float64(time.Minute)))
	return rise, set, true
}
