package roster

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kimshangyup/neulbom/internal/model"
)

const (
	maxSchoolNameLen  = 200
	maxClassNameLen   = 100
	maxStudentNameLen = 100
	maxSpaceURLLen    = 500

	minGrade = 1
	maxGrade = 6
)

var requiredColumns = []string{"school_name", "class_name", "student_name"}

type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// Validate applies the structural check, per-row normalization, and
// per-row content checks in order. A missing required column fails the
// batch immediately with no row-level validation; content failures
// accumulate across all rows. Read-only, no store access.
func (v *Validator) Validate(table *Table) model.ValidationResult {
	result := model.ValidationResult{}

	for _, col := range requiredColumns {
		if !table.HasColumn(col) {
			result.Errors = append(result.Errors,
				fmt.Sprintf("required column '%s' is missing", col))
		}
	}
	if len(result.Errors) > 0 {
		return result
	}

	if len(table.Rows) == 0 {
		result.Errors = append(result.Errors, "file contains no data rows")
		return result
	}

	for idx, raw := range table.Rows {
		rowNum := idx + 2 // data index + 2: header occupies line 1
		row := normalizeRow(raw)
		v.checkRow(&result, row, rowNum)
		result.Rows = append(result.Rows, row)
	}

	result.Valid = len(result.Errors) == 0
	if !result.Valid {
		result.Rows = nil
	}
	return result
}

// normalizeRow trims string fields and coerces the optional numeric fields.
// Numeric text that does not parse is treated as absent here; range
// enforcement happens in checkRow.
func normalizeRow(raw map[string]string) model.RosterRow {
	return model.RosterRow{
		SchoolName:  strings.TrimSpace(raw["school_name"]),
		ClassName:   strings.TrimSpace(raw["class_name"]),
		StudentName: strings.TrimSpace(raw["student_name"]),
		ClassNumber: coerceInt(raw["class_number"]),
		Grade:       coerceInt(raw["grade"]),
		Notes:       strings.TrimSpace(raw["notes"]),
		ZEPSpaceURL: strings.TrimSpace(raw["zep_space_url"]),
	}
}

// coerceInt accepts the heterogeneous numeric shapes spreadsheets produce:
// "3", "3.0", " 3 ". Anything else is absent, not an error.
func coerceInt(s string) *int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	n := int(f)
	if float64(n) != f {
		return nil
	}
	return &n
}

func (v *Validator) checkRow(result *model.ValidationResult, row model.RosterRow, rowNum int) {
	addErr := func(format string, args ...interface{}) {
		result.Errors = append(result.Errors,
			fmt.Sprintf("row %d: ", rowNum)+fmt.Sprintf(format, args...))
	}

	switch {
	case row.SchoolName == "":
		addErr("school name is missing")
	case len([]rune(row.SchoolName)) > maxSchoolNameLen:
		addErr("school name is too long (max %d characters)", maxSchoolNameLen)
	}

	switch {
	case row.ClassName == "":
		addErr("class name is missing")
	case len([]rune(row.ClassName)) > maxClassNameLen:
		addErr("class name is too long (max %d characters)", maxClassNameLen)
	}

	switch {
	case row.StudentName == "":
		addErr("student name is missing")
	case len([]rune(row.StudentName)) > maxStudentNameLen:
		addErr("student name is too long (max %d characters)", maxStudentNameLen)
	}

	if row.Grade != nil && (*row.Grade < minGrade || *row.Grade > maxGrade) {
		addErr("grade must be in range 1-6 (got %d)", *row.Grade)
	}

	if row.ClassNumber != nil && *row.ClassNumber < 1 {
		addErr("class number must be 1 or greater (got %d)", *row.ClassNumber)
	}

	if row.ZEPSpaceURL != "" && len([]rune(row.ZEPSpaceURL)) > maxSpaceURLLen {
		addErr("space URL is too long (max %d characters)", maxSpaceURLLen)
	}
}
