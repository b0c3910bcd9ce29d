package checkout

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const orderNumberPrefix = "ORD-"

// NumberGenerator выдаёт номер нового заказа.
type NumberGenerator func(now time.Time) string

// DefaultNumberGenerator формирует номер вида ORD-20240102150405123456-a1b2:
// UTC-время с микросекундами и четыре случайных hex-символа.
func DefaultNumberGenerator(now time.Time) string {
	stamp := strings.Replace(now.UTC().Format("20060102150405.000000"), ".", "", 1)
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:4]
	return orderNumberPrefix + stamp + "-" + suffix
}
