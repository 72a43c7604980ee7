package model

// RatingSummary is the raw aggregate of every review of one place.
//
// We keep the SUM, not the average, because the average has to be rounded
// and a rounded value can't be combined with anything else later.
type RatingSummary struct {
	Count int `json:"count"`
	Sum   int `json:"sum"`
}

// Average returns the mean rating rounded to one decimal place, rounding
// halves UP (4.25 → 4.3). Zero reviews give 0.
//
// INTEGER ARITHMETIC:
// sum/count in float64 is exact for .25 and .75 but not for every fraction,
// and math.Round on a value like 4.049999… can go the wrong way. Working in
// tenths with integers avoids that entirely:
//
//	tenths = floor((20*sum + count) / (2*count))
//
// which is floor(10*sum/count + 0.5), i.e. round-half-up of the mean in tenths.
func (s RatingSummary) Average() float64 {
	if s.Count <= 0 {
		return 0
	}
	tenths := (20*s.Sum + s.Count) / (2 * s.Count)
	return float64(tenths) / 10
}

// Add folds one more rating into the summary.
func (s RatingSummary) Add(rating int) RatingSummary {
	return RatingSummary{Count: s.Count + 1, Sum: s.Sum + rating}
}
