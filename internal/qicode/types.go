package qicode

import "fmt"

// VarType classifies what a variable or expression represents. Types are
// inferred from use; a variable that is added to a time duration becomes
// a time itself.
type VarType int

const (
	// TypeUnknown is the initial state before inference.
	TypeUnknown VarType = iota
	// TypeNormal is a plain integer.
	TypeNormal
	// TypeTime is a duration, stored as cycles on the device.
	TypeTime
	// TypeState is a qubit state, 0 or 1.
	TypeState
	// TypeFrequency is an NCO frequency.
	TypeFrequency
	// TypePhase is an NCO phase offset.
	TypePhase
	// TypeAmplitude is a DAC amplitude scale.
	TypeAmplitude
)

func (t VarType) String() string {
	switch t {
	case TypeNormal:
		return "normal"
	case TypeTime:
		return "time"
	case TypeState:
		return "state"
	case TypeFrequency:
		return "frequency"
	case TypePhase:
		return "phase"
	case TypeAmplitude:
		return "amplitude"
	}
	return "unknown"
}

// typeInfo tracks the inferred type of one expression node together with
// the implication constraints attached to it.
type typeInfo struct {
	owner       Expr
	typ         VarType
	reason      string
	illegal     map[VarType]string
	constraints []*typeConstraint
}

// premise states that an expression has a given type.
type premise struct {
	expr Expr
	typ  VarType
}

// typeConstraint is an implication: once every premise holds, the
// conclusion's type is set as well.
type typeConstraint struct {
	premises   []premise
	conclusion premise
	reason     string
	applied    bool
}

func (c *typeConstraint) satisfied() bool {
	for _, p := range c.premises {
		if p.expr.info().typ != p.typ {
			return false
		}
	}
	return true
}

// setType assigns a type to the expression, propagating through any
// constraints that become satisfied. Conflicting assignments and
// assignments to a forbidden type are reported with both reasons.
func (ti *typeInfo) setType(typ VarType, reason string) error {
	if why, bad := ti.illegal[typ]; bad {
		return &ProgramError{
			Code:    ErrCodeIllegalType,
			Subject: ti.owner.String(),
			Message: fmt.Sprintf("cannot be %s (%s) because %s", typ, reason, why),
		}
	}
	if ti.typ != TypeUnknown {
		if ti.typ == typ {
			return nil
		}
		return &ProgramError{
			Code:    ErrCodeTypeMismatch,
			Subject: ti.owner.String(),
			Message: fmt.Sprintf("inferred %s (%s) but also %s (%s)", ti.typ, ti.reason, typ, reason),
		}
	}
	ti.typ = typ
	ti.reason = reason
	for _, c := range ti.constraints {
		if c.applied || !c.satisfied() {
			continue
		}
		c.applied = true
		if err := c.conclusion.expr.info().setType(c.conclusion.typ, c.reason); err != nil {
			return err
		}
	}
	return nil
}

// addIllegal forbids a type for the expression.
func (ti *typeInfo) addIllegal(typ VarType, why string) error {
	if ti.typ == typ {
		return &ProgramError{
			Code:    ErrCodeIllegalType,
			Subject: ti.owner.String(),
			Message: fmt.Sprintf("is %s (%s) but %s", typ, ti.reason, why),
		}
	}
	if ti.illegal == nil {
		ti.illegal = make(map[VarType]string)
	}
	ti.illegal[typ] = why
	return nil
}

// addConstraint registers an implication on every premise expression and
// applies it immediately when already satisfied.
func addConstraint(premises []premise, conclusion premise, reason string) error {
	c := &typeConstraint{premises: premises, conclusion: conclusion, reason: reason}
	for _, p := range premises {
		info := p.expr.info()
		info.constraints = append(info.constraints, c)
	}
	if c.satisfied() {
		c.applied = true
		return conclusion.expr.info().setType(conclusion.typ, reason)
	}
	return nil
}

// addEqualConstraints ties the expressions together for one type: if any
// of them is inferred to it, all of them are.
func addEqualConstraints(typ VarType, reason string, exprs ...Expr) error {
	for _, a := range exprs {
		for _, b := range exprs {
			if a == b {
				continue
			}
			err := addConstraint([]premise{{a, typ}}, premise{b, typ}, reason)
			if err != nil {
				return err
			}
		}
	}
	return nil
}
