package physics

import (
	"math"
	"time"

	"github.com/westphae/geomag/pkg/egm96"
	"github.com/westphae/geomag/pkg/wmm"
)

// Constants
const (
	R           = 287.058  // Specific gas constant for dry air (J/(kg·K))
	G           = 9.80665  // Gravity (m/s^2)
	T0          = 288.15   // Standard Sea Level Temperature (K)
	P0          = 1013.25  // Standard Sea Level Pressure (hPa)
	L           = 0.0065   // Temperature Lapse Rate (K/m) in Troposphere
	ZeroCelsius = 273.15   // 0°C in Kelvin
	KnotsToMs   = 0.514444 // Conversion factor from Knots to m/s
	MsToKnots   = 1.94384  // Conversion factor from m/s to Knots

	// ISA Layer Boundaries
	TropopauseAltM    = 11000.0 // 11 km
	StratosphereTempK = 216.65  // Constant temperature in Stratosphere
	TropopausePress   = 226.32  // Pressure at Tropopause (hPa)
)

// SeaLevelTemperature projects an outside air temperature observed at
// altitude down to sea level using the standard lapse rate. Above the
// tropopause the projection is anchored at the tropopause so high-altitude
// readings do not produce absurd surface temperatures.
func SeaLevelTemperature(oatCelsius, altM float64) float64 {
	if altM > TropopauseAltM {
		altM = TropopauseAltM
	}
	return oatCelsius + L*altM
}

// AltitudeToPressure converts altitude in meters to pressure in hPa using the
// Standard Atmosphere model (Troposphere and Stratosphere, up to ~20km)
func AltitudeToPressure(altM float64) float64 {
	if altM < 0 {
		altM = 0
	}

	if altM <= TropopauseAltM {
		// P = P0 * (1 - L*h/T0)^(g/RL)
		exponent := G / (R * L)
		base := 1 - (L * altM / T0)
		return P0 * math.Pow(base, exponent)
	}
	// P = P_trop * exp( -g*(h - h_trop) / (R * T_strat) )
	relAlt := altM - TropopauseAltM
	exponent := -(G * relAlt) / (R * StratosphereTempK)
	return TropopausePress * math.Exp(exponent)
}

// PressureToAltitude converts a pressure level in hPa to the corresponding
// Standard Atmosphere altitude in meters. Inverse of AltitudeToPressure.
func PressureToAltitude(hPa float64) float64 {
	if hPa >= P0 {
		return 0
	}

	if hPa >= TropopausePress {
		// h = T0/L * (1 - (P/P0)^(RL/g))
		exponent := (R * L) / G
		return T0 / L * (1 - math.Pow(hPa/P0, exponent))
	}
	// h = h_trop - R*T_strat/g * ln(P/P_trop)
	return TropopauseAltM - (R*StratosphereTempK/G)*math.Log(hPa/TropopausePress)
}

// earthRadiusM is the mean earth radius used for great-circle distances.
const earthRadiusM = 6371000.0

// DistanceM returns the great-circle distance in meters between two
// lat/lon points (haversine formula).
func DistanceM(lat1, lon1, lat2, lon2 float64) float64 {
	const degToRad = math.Pi / 180

	dLat := (lat2 - lat1) * degToRad
	dLon := (lon2 - lon1) * degToRad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*degToRad)*math.Cos(lat2*degToRad)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusM * math.Asin(math.Sqrt(a))
}

// MagneticDeclination calculates the magnetic declination for a given
// position and time. Returns declination in degrees (+East, -West).
func MagneticDeclination(lat, lon, altM float64, date time.Time) float64 {
	loc := egm96.NewLocationGeodetic(lat, lon, altM)

	mag, err := wmm.CalculateWMMMagneticField(loc, date)
	if err != nil {
		// Return 0 for safety if calculation fails
		return 0.0
	}

	return mag.D()
}
