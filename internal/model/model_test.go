package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateHelpers(t *testing.T) {
	d := Date("2025-01-30")
	require.True(t, d.Valid())

	assert.Equal(t, Date("2025-02-02"), d.AddDays(3))
	assert.Equal(t, Date("2025-01-29"), d.AddDays(-1))
	assert.True(t, Date("2025-01-09").Before("2025-01-10"))
	assert.False(t, Date("2025-01-10").Before("2025-01-10"))

	assert.False(t, Date("30.01.2025").Valid())
	assert.False(t, Date("2025-1-30").Valid(), "must be zero-padded")
	assert.False(t, Date("").Valid())

	assert.Equal(t, Date("2024-02-29"), NewDate(time.Date(2024, 2, 29, 23, 59, 0, 0, time.UTC)))
}

func TestClockValid(t *testing.T) {
	assert.True(t, Clock("08:15").Valid())
	assert.True(t, Clock("23:59").Valid())
	assert.False(t, Clock("8:15").Valid(), "must be zero-padded")
	assert.False(t, Clock("24:00").Valid())
	assert.False(t, Clock("morning").Valid())
	assert.False(t, Clock("").Valid())
}

func TestCategoryLocationRequirement(t *testing.T) {
	for _, c := range []Category{CategoryVet, CategoryGrooming, CategoryTraining} {
		assert.True(t, c.RequiresLocation(), "%s", c)
	}
	for _, c := range []Category{CategoryFeeding, CategoryWalk, CategoryMedication, CategoryOther} {
		assert.False(t, c.RequiresLocation(), "%s", c)
	}
}

func TestSkeletonValidate(t *testing.T) {
	valid := EventSkeleton{
		Title:    "Walk",
		Date:     "2025-03-01",
		Time:     "08:00",
		Category: CategoryWalk,
	}
	require.NoError(t, valid.Validate())

	grooming := valid
	grooming.Category = CategoryGrooming
	err := grooming.Validate()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "location", verr.Field)

	grooming.Location = "Salon B"
	require.NoError(t, grooming.Validate())

	badRepeat := valid
	badRepeat.Repeat = "fortnightly"
	require.Error(t, badRepeat.Validate())
}

func TestEventPatchApply(t *testing.T) {
	rec := EventRecord{
		ID:       "e1",
		OwnerID:  "owner-1",
		Title:    "Walk",
		Date:     "2025-03-01",
		Time:     "08:00",
		Category: CategoryWalk,
		Repeat:   RepeatForever,
	}

	title := "Evening walk"
	clock := Clock("19:00")
	got := EventPatch{Title: &title, Time: &clock}.Apply(rec)

	assert.Equal(t, "Evening walk", got.Title)
	assert.Equal(t, Clock("19:00"), got.Time)
	assert.Equal(t, rec.Date, got.Date, "unpatched fields untouched")
	assert.Equal(t, RepeatForever, got.Repeat, "series tag is not editable")
	assert.Equal(t, "owner-1", got.OwnerID)
}

func TestExpenseValidate(t *testing.T) {
	require.NoError(t, Expense{Title: "Vaccine", Amount: 4500, Date: "2025-03-01"}.Validate())
	require.Error(t, Expense{Title: "", Amount: 1, Date: "2025-03-01"}.Validate())
	require.Error(t, Expense{Title: "x", Amount: -1, Date: "2025-03-01"}.Validate())
	require.Error(t, Expense{Title: "x", Amount: 1, Date: "soon"}.Validate())
}
