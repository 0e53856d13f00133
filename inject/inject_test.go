package inject

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// fakeTab records the calls made against it and can fail on demand.
type fakeTab struct {
	inserted  []string
	removed   []string
	insertErr error
	removeErr error
}

func (f *fakeTab) InsertCSS(_ context.Context, css string) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, css)
	return nil
}

func (f *fakeTab) RemoveCSS(_ context.Context, css string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, css)
	return nil
}

// fakeTabs serves a fixed tab set; unknown ids report tab-gone.
type fakeTabs struct {
	tabs map[string]*fakeTab
}

func (f *fakeTabs) Get(_ context.Context, tabID string) (Tab, error) {
	t, ok := f.tabs[tabID]
	if !ok {
		return nil, fmt.Errorf("%w: no target %s", ErrTabGone, tabID)
	}
	return t, nil
}

func harness(tabs ...string) (*fakeTabs, *Controller) {
	ft := &fakeTabs{tabs: map[string]*fakeTab{}}
	for _, id := range tabs {
		ft.tabs[id] = &fakeTab{}
	}
	return ft, NewController(ft, nil)
}

func TestApply_RemovePrecedesInsert(t *testing.T) {
	ft, c := harness("42")

	css := "body{color:red}"
	if err := c.Apply(context.Background(), "42", css); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	tab := ft.tabs["42"]
	if len(tab.removed) != 1 || tab.removed[0] != css {
		t.Errorf("removed = %v, want one remove of the held text", tab.removed)
	}
	if len(tab.inserted) != 1 || tab.inserted[0] != css {
		t.Errorf("inserted = %v, want one insert of %q", tab.inserted, css)
	}
}

func TestApply_EmptyIsNoop(t *testing.T) {
	ft, c := harness("42")

	if err := c.Apply(context.Background(), "42", ""); err != nil {
		t.Fatalf("Apply empty: %v", err)
	}
	tab := ft.tabs["42"]
	if len(tab.inserted) != 0 || len(tab.removed) != 0 {
		t.Errorf("empty apply touched the tab: inserted=%v removed=%v", tab.inserted, tab.removed)
	}
}

func TestApply_InvalidCSS(t *testing.T) {
	ft, c := harness("42")

	err := c.Apply(context.Background(), "42", "body{color:red") // unclosed block
	if !errors.Is(err, ErrInvalidCSS) {
		t.Fatalf("err = %v, want ErrInvalidCSS", err)
	}
	if len(ft.tabs["42"].inserted) != 0 {
		t.Error("invalid CSS reached the tab")
	}
}

func TestApply_TabGoneSwallowed(t *testing.T) {
	_, c := harness() // no tabs at all

	if err := c.Apply(context.Background(), "404", "body{color:red}"); err != nil {
		t.Errorf("Apply to vanished tab = %v, want nil (swallowed)", err)
	}
}

func TestApply_AccessDeniedSwallowed(t *testing.T) {
	ft, c := harness("42")
	ft.tabs["42"].insertErr = fmt.Errorf("%w: cannot access chrome://", ErrAccessDenied)

	if err := c.Apply(context.Background(), "42", "body{color:red}"); err != nil {
		t.Errorf("Apply to restricted tab = %v, want nil (swallowed)", err)
	}
}

func TestApply_OtherErrorSurfaces(t *testing.T) {
	ft, c := harness("42")
	ft.tabs["42"].insertErr = errors.New("renderer crashed")

	err := c.Apply(context.Background(), "42", "body{color:red}")
	if !errors.Is(err, ErrInjectionFailed) {
		t.Errorf("err = %v, want ErrInjectionFailed", err)
	}
}

func TestApply_RemoveFailureNeverBlocksInsert(t *testing.T) {
	ft, c := harness("42")
	ft.tabs["42"].removeErr = errors.New("no such node")

	css := "body{color:red}"
	if err := c.Apply(context.Background(), "42", css); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(ft.tabs["42"].inserted) != 1 {
		t.Error("insert skipped after remove failure")
	}
}

func TestRemoveLast_AlwaysSwallowed(t *testing.T) {
	ft, c := harness("42")
	ft.tabs["42"].removeErr = errors.New("boom")

	// Must not panic, must not propagate anything.
	c.RemoveLast(context.Background(), "42", "body{}")
	c.RemoveLast(context.Background(), "404", "body{}")
	c.RemoveLast(context.Background(), "42", "")
}

func TestInject_NoRemoveStep(t *testing.T) {
	ft, c := harness("42")

	if err := c.Inject(context.Background(), "42", "body{color:red}"); err != nil {
		t.Fatalf("Inject: %v", err)
	}
	tab := ft.tabs["42"]
	if len(tab.removed) != 0 {
		t.Errorf("Inject issued a remove: %v", tab.removed)
	}
	if len(tab.inserted) != 1 {
		t.Errorf("inserted = %v, want one insert", tab.inserted)
	}
}

func TestInject_TabGoneSwallowed(t *testing.T) {
	_, c := harness()

	if err := c.Inject(context.Background(), "404", "body{}"); err != nil {
		t.Errorf("Inject to vanished tab = %v, want nil", err)
	}
}

func TestValidateCSS(t *testing.T) {
	cases := []struct {
		name    string
		css     string
		wantErr bool
	}{
		{"simple rule", "body{color:red}", false},
		{"multiple rules", "body{color:red}\na.link{ text-decoration: none; }", false},
		{"media query", "@media (max-width: 600px) { body { font-size: 14px } }", false},
		{"empty", "", false},
		{"whitespace only", "   \n\t", false},
		{"brace in string", `a::before{content:"}"}`, false},
		{"brace in comment", "/* } */ body{color:red}", false},
		{"unclosed block", "body{color:red", true},
		{"unclosed nested block", "@media screen { body { color: red }", true},
		{"unmatched closing brace", "body}color:red{", true},
		{"unterminated comment", "/* body{color:red}", true},
		{"unterminated string", `a::before{content:"x}`, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateCSS(tc.css)
			if tc.wantErr && !errors.Is(err, ErrInvalidCSS) {
				t.Errorf("ValidateCSS(%q) = %v, want ErrInvalidCSS", tc.css, err)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("ValidateCSS(%q) = %v, want nil", tc.css, err)
			}
		})
	}
}
