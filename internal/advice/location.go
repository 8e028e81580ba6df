package advice

import (
	"errors"
	"math"
	"math/rand/v2"

	"github.com/spf13/pflag"

	"github.com/hos-care/console/internal/client"
)

var (
	// TokyoCenter is the centre of the random test area.
	TokyoCenter = client.Location{Lat: 35.6762, Lon: 139.6503}
	// Shinjuku is the fixed test location near Shinjuku station.
	Shinjuku = client.Location{Lat: 35.6909, Lon: 139.7006}
)

// tokyoSpread is the full width of the random area in degrees, roughly
// 11 km.
const tokyoSpread = 0.1

// RandomTokyo returns a point within ±0.05° of TokyoCenter, rounded to six
// decimals.
func RandomTokyo(r *rand.Rand) client.Location {
	return client.Location{
		Lat: round6(TokyoCenter.Lat + (r.Float64()-0.5)*tokyoSpread),
		Lon: round6(TokyoCenter.Lon + (r.Float64()-0.5)*tokyoSpread),
	}
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// LocationFlags selects where an advice request says the user is.
type LocationFlags struct {
	flagSet     *pflag.FlagSet
	lat, lon    float64
	randomTokyo bool
	shinjuku    bool
}

// AddFlags registers --lat, --lon, --random-tokyo and --shinjuku.
func (f *LocationFlags) AddFlags(flagSet *pflag.FlagSet) {
	f.flagSet = flagSet
	flagSet.Float64Var(&f.lat, "lat", 0, "latitude of the user")
	flagSet.Float64Var(&f.lon, "lon", 0, "longitude of the user")
	flagSet.BoolVar(&f.randomTokyo, "random-tokyo", false, "use a random point in central Tokyo (test mode)")
	flagSet.BoolVar(&f.shinjuku, "shinjuku", false, "use a fixed point near Shinjuku station (test mode)")
}

// Resolve returns the selected location, or nil when none was given.
func (f *LocationFlags) Resolve(r *rand.Rand) (*client.Location, error) {
	explicit := f.flagSet != nil && (f.flagSet.Changed("lat") || f.flagSet.Changed("lon"))
	chosen := 0
	for _, set := range []bool{explicit, f.randomTokyo, f.shinjuku} {
		if set {
			chosen++
		}
	}
	if chosen > 1 {
		return nil, errors.New("--lat/--lon, --random-tokyo and --shinjuku are mutually exclusive")
	}

	switch {
	case explicit:
		if !f.flagSet.Changed("lat") || !f.flagSet.Changed("lon") {
			return nil, errors.New("--lat and --lon must be given together")
		}
		if f.lat < -90 || f.lat > 90 || f.lon < -180 || f.lon > 180 {
			return nil, errors.New("coordinates out of range")
		}
		return &client.Location{Lat: f.lat, Lon: f.lon}, nil
	case f.randomTokyo:
		loc := RandomTokyo(r)
		return &loc, nil
	case f.shinjuku:
		loc := Shinjuku
		return &loc, nil
	}
	return nil, nil
}
