package models

import (
	"strconv"
	"strings"
)

// TableClass buckets parties by size. Each class has its own daily number sequence.
type TableClass int

const (
	TableSmall  TableClass = 1
	TableMedium TableClass = 2
	TableLarge  TableClass = 3
)

var TableClasses = []TableClass{TableSmall, TableMedium, TableLarge}

// ClassForPartySize maps 1-2 to small, 3-4 to medium and anything larger to large.
func ClassForPartySize(partySize int) TableClass {
	switch {
	case partySize <= 2:
		return TableSmall
	case partySize <= 4:
		return TableMedium
	default:
		return TableLarge
	}
}

func (c TableClass) Valid() bool {
	return c >= TableSmall && c <= TableLarge
}

func (c TableClass) String() string {
	switch c {
	case TableSmall:
		return "small"
	case TableMedium:
		return "medium"
	case TableLarge:
		return "large"
	default:
		return "unknown"
	}
}

func (c TableClass) Prefix() string {
	switch c {
	case TableSmall:
		return "S"
	case TableMedium:
		return "M"
	case TableLarge:
		return "L"
	default:
		return ""
	}
}

func (c TableClass) Format(number int) string {
	return c.Prefix() + strconv.Itoa(number)
}

// ParseTableClass accepts a numeric id ("2"), a name ("medium") or a prefix ("M").
func ParseTableClass(value string) (TableClass, bool) {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, class := range TableClasses {
		if value == strconv.Itoa(int(class)) || value == class.String() || value == strings.ToLower(class.Prefix()) {
			return class, true
		}
	}
	return 0, false
}

// ParseFormattedNumber splits "M12" into (medium, 12).
func ParseFormattedNumber(value string) (TableClass, int, bool) {
	value = strings.TrimSpace(value)
	if len(value) < 2 {
		return 0, 0, false
	}
	var class TableClass
	for _, candidate := range TableClasses {
		if strings.EqualFold(candidate.Prefix(), value[:1]) {
			class = candidate
		}
	}
	if class == 0 {
		return 0, 0, false
	}
	number, err := strconv.Atoi(value[1:])
	if err != nil || number <= 0 {
		return 0, 0, false
	}
	return class, number, true
}

type TableType struct {
	ID      TableClass `json:"id"`
	Name    string     `json:"name"`
	Prefix  string     `json:"prefix"`
	MinSize int        `json:"min_size"`
	MaxSize int        `json:"max_size,omitempty"`
}

func TableTypes() []TableType {
	return []TableType{
		{ID: TableSmall, Name: TableSmall.String(), Prefix: TableSmall.Prefix(), MinSize: 1, MaxSize: 2},
		{ID: TableMedium, Name: TableMedium.String(), Prefix: TableMedium.Prefix(), MinSize: 3, MaxSize: 4},
		{ID: TableLarge, Name: TableLarge.String(), Prefix: TableLarge.Prefix(), MinSize: 5},
	}
}
