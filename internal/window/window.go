// Package window slices a time span into fixed-length assimilation windows.
package window

import (
	"fmt"
	"time"

	"github.com/jeromebarre/get-obs/internal/models"
)

// Generate returns the ordered windows covering [start, end).
//
// window[i].Start = start + i*length. A window starting exactly at end is not
// emitted; when start == end a single window is returned so the plan is never empty.
func Generate(start, end time.Time, length time.Duration) ([]models.Window, error) {
	if length <= 0 {
		return nil, fmt.Errorf("%w: window length must be positive, got %s", models.ErrInvalidConfiguration, length)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end %s is before start %s",
			models.ErrInvalidConfiguration, end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	n := Count(start, end, length)
	windows := make([]models.Window, 0, n)
	for i := 0; i < n; i++ {
		ws := start.Add(time.Duration(i) * length)
		windows = append(windows, models.Window{
			Index:  i,
			Start:  ws,
			End:    ws.Add(length),
			Center: ws.Add(length / 2),
		})
	}
	return windows, nil
}

// Count returns ceil((end-start)/length), never less than one.
func Count(start, end time.Time, length time.Duration) int {
	span := end.Sub(start)
	if span <= 0 || length <= 0 {
		return 1
	}
	n := int(span / length)
	if span%length != 0 {
		n++
	}
	return n
}
