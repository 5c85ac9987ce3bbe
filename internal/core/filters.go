package core

import (
	"math"
	"strings"
)

// EvaluationRecord is the flattened view of a stored evaluation that search
// filters match against.
type EvaluationRecord struct {
	Brand      string
	Category   string
	Objective  string
	Status     string
	Verdict    string
	Confidence string
	HardGate   bool
	Index      *float64
	// Scores maps ScoreKey(short name) to the role's score. FAIL verdicts map
	// to nil.
	Scores map[string]*float64
}

// ScoreKey is the identifier a role short name is referenced by in queries,
// e.g. "Brand Memory" becomes brand_memory.
func ScoreKey(shortName string) string {
	return strings.ToLower(strings.Join(strings.Fields(shortName), "_"))
}

func (r EvaluationRecord) stringField(name string) string {
	switch name {
	case "brand":
		return r.Brand
	case "category":
		return r.Category
	case "objective":
		return r.Objective
	case "status":
		return r.Status
	case "verdict":
		return r.Verdict
	case "confidence":
		return r.Confidence
	case "hard_gate":
		if r.HardGate {
			return "true"
		}
		return "false"
	}
	return ""
}

type Filter interface {
	Matches(record EvaluationRecord) bool
}

type AndFilter struct {
	filters []Filter
}

func (f *AndFilter) Matches(record EvaluationRecord) bool {
	for _, filter := range f.filters {
		if !filter.Matches(record) {
			return false
		}
	}
	return true
}

type OrFilter struct {
	filters []Filter
}

func (f *OrFilter) Matches(record EvaluationRecord) bool {
	for _, filter := range f.filters {
		if filter.Matches(record) {
			return true
		}
	}
	return false
}

type NotFilter struct {
	filter Filter
}

func (f *NotFilter) Matches(record EvaluationRecord) bool {
	return !f.filter.Matches(record)
}

type SubstringFilter struct {
	field  string
	substr string
}

func (f *SubstringFilter) Matches(record EvaluationRecord) bool {
	return strings.Contains(strings.ToLower(record.stringField(f.field)), strings.ToLower(f.substr))
}

type StringEqFilter struct {
	field string
	value string
}

func (f *StringEqFilter) Matches(record EvaluationRecord) bool {
	return strings.EqualFold(record.stringField(f.field), f.value)
}

type StringLtFilter struct {
	field string
	value string
}

func (f *StringLtFilter) Matches(record EvaluationRecord) bool {
	return record.stringField(f.field) < f.value
}

type StringGtFilter struct {
	field string
	value string
}

func (f *StringGtFilter) Matches(record EvaluationRecord) bool {
	return record.stringField(f.field) > f.value
}

const numberTolerance = 1e-9

// NumberFilter compares the index, or a role score when role is set. Records
// without a value never match.
type NumberFilter struct {
	role  string
	op    string
	value float64
}

func (f *NumberFilter) number(record EvaluationRecord) *float64 {
	if f.role == "" {
		return record.Index
	}
	return record.Scores[f.role]
}

func (f *NumberFilter) Matches(record EvaluationRecord) bool {
	n := f.number(record)
	if n == nil {
		return false
	}
	switch f.op {
	case "<":
		return *n < f.value
	case ">":
		return *n > f.value
	default:
		return math.Abs(*n-f.value) < numberTolerance
	}
}
