// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package errors

// Template describes the fields an Err must carry to satisfy Match.  Zero
// fields are not compared, so a Template may select on Kind alone.
type Template struct {
	Err
	Kind Kind
}

// T builds a Template from any mix of Code, Kind, Op, message string and
// wrapped error.  Unrecognized arguments are ignored and later arguments of
// the same type replace earlier ones.
func T(args ...any) *Template {
	t := &Template{}
	for _, a := range args {
		switch v := a.(type) {
		case Code:
			t.Code = v
		case Kind:
			t.Kind = v
		case Op:
			t.Op = v
		case string:
			t.Msg = v
		case *Err:
			cp := *v
			t.Wrapped = &cp
		case error:
			t.Wrapped = v
		}
	}
	return t
}

// Info returns the Code's Info when set, otherwise an Info carrying only the
// Template's Kind.
func (t *Template) Info() Info {
	switch {
	case t == nil:
		return errorCodeInfo[Unknown]
	case t.Code != Unknown:
		return t.Code.Info()
	case t.Kind != Other:
		return Info{Message: "Unknown", Kind: t.Kind}
	}
	return errorCodeInfo[Unknown]
}

// Error keeps a Template from being mistaken for a usable domain error.
func (t *Template) Error() string {
	return "Template error"
}

// Match reports whether the first *Err found in err's chain carries every
// non-empty field of t.
func Match(t *Template, err error) bool {
	if t == nil || err == nil {
		return false
	}
	var e *Err
	if !As(err, &e) {
		return false
	}
	return t.fieldsMatch(e) && t.wrappedMatches(e)
}

func (t *Template) fieldsMatch(e *Err) bool {
	switch {
	case t.Code != Unknown && t.Code != e.Code:
		return false
	case t.Msg != "" && t.Msg != e.Msg:
		return false
	case t.Op != "" && t.Op != e.Op:
		return false
	case t.Kind != Other && t.Info().Kind != e.Info().Kind:
		return false
	}
	return true
}

func (t *Template) wrappedMatches(e *Err) bool {
	switch w := t.Wrapped.(type) {
	case nil:
		return true
	case *Template:
		return Match(w, e.Wrapped)
	default:
		return e.Wrapped == nil || w.Error() == e.Wrapped.Error()
	}
}
