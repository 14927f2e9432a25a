package nav

import (
	"context"
	"fmt"
)

// Step is one click within a strategy, addressed either by CSS selector or
// by visible link text. Exactly one of the two fields must be set.
type Step struct {
	Selector string
	Text     string
}

func (s Step) run(ctx context.Context, d Driver) (bool, error) {
	if s.Selector != "" {
		return d.Click(ctx, s.Selector)
	}
	return d.ClickText(ctx, s.Text)
}

func (s Step) String() string {
	if s.Selector != "" {
		return s.Selector
	}
	return fmt.Sprintf("text(%q)", s.Text)
}

// ClickPath is a strategy made of ordered clicks. It counts as activated
// only when every step clicked something; a step that found no element
// means the path does not exist on the current page and the next strategy
// should run instead.
type ClickPath struct {
	Label string
	Steps []Step
}

func (p ClickPath) Name() string { return p.Label }

func (p ClickPath) Attempt(ctx context.Context, d Driver) (bool, error) {
	for i, step := range p.Steps {
		ok, err := step.run(ctx, d)
		if err != nil {
			return false, fmt.Errorf("step %d (%s): %w", i, step, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// Breadcrumb clicks through a structural breadcrumb trail of selectors.
func Breadcrumb(selectors ...string) Strategy {
	steps := make([]Step, len(selectors))
	for i, sel := range selectors {
		steps[i] = Step{Selector: sel}
	}
	return ClickPath{Label: "breadcrumb", Steps: steps}
}

// MenuLink follows a named link in the main navigation menu.
func MenuLink(texts ...string) Strategy {
	steps := make([]Step, len(texts))
	for i, txt := range texts {
		steps[i] = Step{Text: txt}
	}
	return ClickPath{Label: "menu-link", Steps: steps}
}

// DirectLink clicks an anchor pointing straight at the target path.
func DirectLink(href string) Strategy {
	return ClickPath{
		Label: "direct-link",
		Steps: []Step{{Selector: fmt.Sprintf(`a[href='%s']`, href)}},
	}
}

// LabelledElement clicks an element carrying the given visible label,
// typically a span inside a styled menu entry.
func LabelledElement(selector string) Strategy {
	return ClickPath{
		Label: "labelled-element",
		Steps: []Step{{Selector: selector}},
	}
}

// SecondaryMenu walks the alternate menu tree some portals expose when the
// primary navigation is broken.
func SecondaryMenu(steps ...Step) Strategy {
	return ClickPath{Label: "secondary-menu", Steps: steps}
}
