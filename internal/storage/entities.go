package storage

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sandeepkv93/cadence/internal/model"
)

type DefinitionListFilter struct {
	Active *bool
	Limit  int
	Offset int
}

type InstanceListFilter struct {
	DefinitionID string
	State        string
	Limit        int
	Offset       int
}

// encodeWeekdays stores days of week as a comma separated list of 1-7.
func encodeWeekdays(days []model.Weekday) string {
	parts := make([]string, 0, len(days))
	for _, d := range days {
		parts = append(parts, strconv.Itoa(int(d)))
	}
	return strings.Join(parts, ",")
}

func decodeWeekdays(raw string) ([]model.Weekday, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]model.Weekday, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("storage: days_of_week %q: %w", raw, err)
		}
		out = append(out, model.Weekday(n))
	}
	return out, nil
}
