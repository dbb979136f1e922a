package app

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/agis/medbook/internal/timeparse"
	"github.com/ethereum/go-ethereum/common"
)

var clockRe = regexp.MustCompile(`^\d{1,2}:\d{2}$`)

type quickBooking struct {
	Doctor common.Address `json:"doctor"`
	At     time.Time      `json:"at"`
	Reason string         `json:"reason"`
}

// parseQuickBook reads "<day> <HH:MM> <doctor address> <reason...>". The
// address may appear anywhere after the time.
func parseQuickBook(input string, now time.Time, loc *time.Location) (quickBooking, error) {
	tokens := strings.Fields(strings.TrimSpace(input))
	if len(tokens) == 0 {
		return quickBooking{}, fmt.Errorf("input is required")
	}
	at, consumed, hasTime, err := parseStartTokens(tokens, now, loc)
	if err != nil {
		return quickBooking{}, err
	}
	if !hasTime {
		return quickBooking{}, fmt.Errorf("missing time; include HH:MM")
	}
	var out quickBooking
	out.At = at
	found := false
	reason := make([]string, 0, len(tokens)-consumed)
	for _, tok := range tokens[consumed:] {
		if !found && common.IsHexAddress(tok) {
			out.Doctor = common.HexToAddress(tok)
			found = true
			continue
		}
		reason = append(reason, tok)
	}
	if !found {
		return quickBooking{}, fmt.Errorf("missing doctor address")
	}
	out.Reason = strings.Join(reason, " ")
	if out.Reason == "" {
		return quickBooking{}, fmt.Errorf("missing reason")
	}
	return out, nil
}

// parseAppointmentTime accepts the day selectors of timeparse plus an
// optional trailing clock, e.g. "tomorrow 10:30" or "+3d 09:00".
func parseAppointmentTime(input string, now time.Time, loc *time.Location) (time.Time, error) {
	tokens := strings.Fields(strings.TrimSpace(input))
	at, consumed, hasTime, err := parseStartTokens(tokens, now, loc)
	if err != nil {
		return time.Time{}, err
	}
	if consumed != len(tokens) {
		return time.Time{}, fmt.Errorf("unexpected text after time: %q", strings.Join(tokens[consumed:], " "))
	}
	if !hasTime {
		return time.Time{}, fmt.Errorf("missing time of day in %q", input)
	}
	return at, nil
}

func parseStartTokens(tokens []string, now time.Time, loc *time.Location) (time.Time, int, bool, error) {
	if len(tokens) == 0 {
		return time.Time{}, 0, false, fmt.Errorf("missing date/time")
	}
	if len(tokens) >= 2 && isDayToken(tokens[0]) && clockRe.MatchString(tokens[1]) {
		at, err := timeparse.Combine(tokens[0], tokens[1], now, loc)
		if err != nil {
			return time.Time{}, 0, false, err
		}
		return at, 2, true, nil
	}
	if len(tokens) >= 2 {
		joined := tokens[0] + " " + tokens[1]
		if ts, err := timeparse.ParseDateTime(joined, now, loc); err == nil {
			return ts, 2, true, nil
		}
	}
	ts, err := timeparse.ParseDateTime(tokens[0], now, loc)
	if err != nil {
		return time.Time{}, 0, false, fmt.Errorf("invalid date/time: %s", tokens[0])
	}
	return ts, 1, strings.Contains(tokens[0], ":"), nil
}

func isDayToken(token string) bool {
	s := strings.ToLower(strings.TrimSpace(token))
	if s == "today" || s == "tomorrow" {
		return true
	}
	if strings.HasSuffix(s, "d") && strings.HasPrefix(s, "+") {
		return true
	}
	if _, err := time.Parse("2006-01-02", token); err == nil {
		return true
	}
	return false
}
