package app

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoctorsListFilters(t *testing.T) {
	h := newHarness(t, common.Address{})
	h.seedDoctor(doctorAddr, "Ada Lovelace", "Cardiology", eth("0.05"))
	h.seedDoctor(strayAddr, "Bo Chen", "Neurology", eth("0.1"))

	env, _, code := h.runJSON("doctors", "list")
	require.Equal(t, 0, code)
	var rows []doctorView
	env.decode(t, &rows)
	assert.Len(t, rows, 2)

	env, _, code = h.runJSON("doctors", "list", "--specialization", "Neurology")
	require.Equal(t, 0, code)
	env.decode(t, &rows)
	require.Len(t, rows, 1)
	assert.Equal(t, "Bo Chen", rows[0].Name)
	assert.EqualValues(t, 2, env.Meta["total"])

	env, _, code = h.runJSON("doctors", "list", "--search", "LOVE")
	require.Equal(t, 0, code)
	env.decode(t, &rows)
	require.Len(t, rows, 1)
	assert.Equal(t, "0.0500", rows[0].FeeETH)
}

func TestDoctorsListUnknownSpecialization(t *testing.T) {
	h := newHarness(t, common.Address{})
	_, stderr, code := h.run("doctors", "list", "--specialization", "Astrology")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "unknown specialization")
	assert.Empty(t, h.mem.Calls())
}

func TestDoctorsShow(t *testing.T) {
	h := newHarness(t, common.Address{})
	h.seedDoctor(doctorAddr, "Ada", "Cardiology", eth("0.05"))

	env, _, code := h.runJSON("doctors", "show", doctorAddr.Hex())
	require.Equal(t, 0, code)
	var d doctorView
	env.decode(t, &d)
	assert.Equal(t, "Ada", d.Name)
	assert.Equal(t, "0x7099...79C8", d.Short)

	_, _, code = h.run("doctors", "show", strayAddr.Hex())
	assert.Equal(t, exitNotFound, code)

	_, _, code = h.run("doctors", "show", "not-an-address")
	assert.Equal(t, exitUsage, code)
}

func TestDoctorsSlots(t *testing.T) {
	h := newHarness(t, common.Address{})
	h.seedDoctor(doctorAddr, "Ada", "Cardiology", eth("0.05"))
	h.seedPatient(patientAddr, "Pat")
	h.seedBooking(patientAddr, doctorAddr, time.Date(2026, 3, 3, 10, 30, 0, 0, time.UTC), eth("0.05"))

	env, _, code := h.runJSON("doctors", "slots", doctorAddr.Hex())
	require.Equal(t, 0, code)
	var rows []slotView
	env.decode(t, &rows)
	require.Len(t, rows, 18)
	assert.Equal(t, "09:00", rows[0].Label)
	assert.Equal(t, "17:30", rows[17].Label)
	assert.EqualValues(t, 17, env.Meta["available"])
	for _, r := range rows {
		if r.Label == "10:30" {
			assert.False(t, r.Available)
		}
	}

	_, _, code = h.run("doctors", "slots", doctorAddr.Hex(), "--date", "today")
	assert.Equal(t, exitUsage, code, "today is not bookable")
}

func TestSpecializations(t *testing.T) {
	h := newHarness(t, common.Address{})
	env, _, code := h.runJSON("specializations")
	require.Equal(t, 0, code)
	var names []string
	env.decode(t, &names)
	assert.Contains(t, names, "Cardiology")
	assert.Empty(t, h.mem.Calls())
}

func TestSlotGrid(t *testing.T) {
	day := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	grid := slotGrid(day)
	require.Len(t, grid, 18)
	assert.Equal(t, 30*time.Minute, grid[1].Sub(grid[0]))
}
