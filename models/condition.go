package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Condition selects which experimental branch's content applies to a session
type Condition int

const (
	ConditionEffort Condition = iota
	ConditionCausality
	ConditionMorality
	ConditionBadness
)

var conditionNames = [...]string{"effort", "causality", "morality", "badness"}

// Valid reports whether c is one of the known conditions
func (c Condition) Valid() bool {
	return c >= ConditionEffort && int(c) < len(conditionNames)
}

// Key returns the index used by the stimulus document's condition tables
func (c Condition) Key() string {
	return strconv.Itoa(int(c))
}

func (c Condition) String() string {
	if !c.Valid() {
		return fmt.Sprintf("condition(%d)", int(c))
	}
	return conditionNames[c]
}

// ParseCondition accepts either the numeric key or the condition name
func ParseCondition(s string) (Condition, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		c := Condition(n)
		if !c.Valid() {
			return 0, fmt.Errorf("unknown condition %d", n)
		}
		return c, nil
	}
	for i, name := range conditionNames {
		if name == s {
			return Condition(i), nil
		}
	}
	return 0, fmt.Errorf("unknown condition %q", s)
}
