package booking

import (
	"math/big"

	"github.com/agis/medbook/internal/contract"
)

// DisplayNetPercent is the share of completed fees shown as doctor earnings
// on the dashboard. It is an estimate; settlement happens on chain.
const DisplayNetPercent = 95

type Stats struct {
	Total       int      `json:"total"`
	Scheduled   int      `json:"scheduled"`
	Completed   int      `json:"completed"`
	Cancelled   int      `json:"cancelled"`
	NoShow      int      `json:"no_show"`
	GrossEarned *big.Int `json:"gross_earned"`
	NetEstimate *big.Int `json:"net_estimate"`
}

func Summarize(appts []contract.Appointment) Stats {
	s := Stats{Total: len(appts), GrossEarned: new(big.Int), NetEstimate: new(big.Int)}
	for _, a := range appts {
		switch a.Status {
		case contract.StatusScheduled:
			s.Scheduled++
		case contract.StatusCompleted:
			s.Completed++
			if a.Fee != nil {
				s.GrossEarned.Add(s.GrossEarned, a.Fee)
			}
		case contract.StatusCancelled:
			s.Cancelled++
		case contract.StatusNoShow:
			s.NoShow++
		}
	}
	s.NetEstimate.Mul(s.GrossEarned, big.NewInt(DisplayNetPercent))
	s.NetEstimate.Div(s.NetEstimate, big.NewInt(100))
	return s
}

// Recent returns up to n appointments, most recently scheduled first.
func Recent(appts []contract.Appointment, n int) []contract.Appointment {
	out := append([]contract.Appointment(nil), appts...)
	SortByDateTime(out, true)
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
