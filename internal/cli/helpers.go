package cli

import (
	"context"
	"fmt"
	"time"
)

func rootContext() context.Context {
	return context.Background()
}

func parseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}

func minuteClock(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}
