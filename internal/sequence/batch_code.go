package sequence

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidShift        = errors.New("invalid_shift")
	ErrInvalidShiftsPerDay = errors.New("invalid_shifts_per_day")
	ErrEmptyMachineLabel   = errors.New("empty_machine_label")
	ErrRollNumberRange     = errors.New("roll_number_out_of_range")
)

// MaxRollNumber is the largest roll number the three-digit suffix holds.
const MaxRollNumber = 999

// ShiftNumber numbers shifts consecutively through the year:
// (dayOfYear - 1) * shiftsPerDay + shiftID.
func ShiftNumber(day time.Time, shiftsPerDay, shiftID int) (int, error) {
	if shiftsPerDay < 1 {
		return 0, ErrInvalidShiftsPerDay
	}
	if shiftID < 1 || shiftID > shiftsPerDay {
		return 0, ErrInvalidShift
	}
	return (day.YearDay()-1)*shiftsPerDay + shiftID, nil
}

// BatchCode renders YY + %03d shift number + machine label + %03d roll.
func BatchCode(day time.Time, shiftNumber int, machineLabel string, rollNumber int64) (string, error) {
	label := strings.TrimSpace(machineLabel)
	if label == "" {
		return "", ErrEmptyMachineLabel
	}
	if rollNumber < 1 || rollNumber > MaxRollNumber {
		return "", ErrRollNumberRange
	}
	return fmt.Sprintf("%02d%03d%s%03d", day.Year()%100, shiftNumber, label, rollNumber), nil
}
