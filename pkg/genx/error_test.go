package genx

import (
	"errors"
	"strings"
	"testing"
)

func TestBlocked(t *testing.T) {
	st := Blocked(Usage{PromptTokenCount: 3}, "unsafe")
	if st.Status() != StatusBlocked {
		t.Errorf("Status = %v, want %v", st.Status(), StatusBlocked)
	}
	if !strings.Contains(st.Error(), "unsafe") {
		t.Errorf("Error = %q", st.Error())
	}
	if st.Usage().PromptTokenCount != 3 {
		t.Errorf("Usage = %+v", st.Usage())
	}
}

func TestTruncated(t *testing.T) {
	var err error = Truncated(Usage{})
	var st *State
	if !errors.As(err, &st) {
		t.Fatal("errors.As should find *State")
	}
	if st.Status() != StatusTruncated {
		t.Errorf("Status = %v", st.Status())
	}
}

func TestError_Unwrap(t *testing.T) {
	base := errors.New("boom")
	if !errors.Is(Error(Usage{}, base), base) {
		t.Error("Error should wrap cause")
	}
}

func TestUsage_Add(t *testing.T) {
	u := Usage{PromptTokenCount: 1, GeneratedTokenCount: 2}.Add(Usage{PromptTokenCount: 3, CachedContentTokenCount: 1})
	if u.PromptTokenCount != 4 || u.GeneratedTokenCount != 2 || u.CachedContentTokenCount != 1 {
		t.Errorf("Add = %+v", u)
	}
	if !strings.Contains(u.String(), "Prompt: 4") {
		t.Errorf("String = %q", u.String())
	}
}
