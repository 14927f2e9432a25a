package nav

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otaviobraga/registry-harvester/internal/scraper"
)

// fakeDriver serves scripted pages: each check consumes the next entry.
type fakeDriver struct {
	pages      []string
	checks     int
	backs      int
	clicks     []string
	textClicks []string

	clickHits map[string]bool
	textHits  map[string]bool
	clickErr  error
}

func (d *fakeDriver) page() string {
	i := d.checks - 1
	if i >= len(d.pages) {
		i = len(d.pages) - 1
	}
	if i < 0 {
		return ""
	}
	return d.pages[i]
}

func (d *fakeDriver) Location(context.Context) (string, error) {
	d.checks++
	return "https://portal.example/current", nil
}

func (d *fakeDriver) Content(context.Context) (string, error) {
	return d.page(), nil
}

func (d *fakeDriver) Back(context.Context) error {
	d.backs++
	return nil
}

func (d *fakeDriver) Click(_ context.Context, selector string) (bool, error) {
	if d.clickErr != nil {
		return false, d.clickErr
	}
	d.clicks = append(d.clicks, selector)
	return d.clickHits[selector], nil
}

func (d *fakeDriver) ClickText(_ context.Context, text string) (bool, error) {
	d.textClicks = append(d.textClicks, text)
	return d.textHits[text], nil
}

func noSettle(context.Context) error { return nil }

func searchTarget() Target {
	return Target{
		Name:      "address-search",
		Match:     func(_, content string) bool { return content == "TARGET" },
		SoftError: func(content string) bool { return content == "SOFT404" },
	}
}

func TestReachAlreadyOnTarget(t *testing.T) {
	d := &fakeDriver{pages: []string{"TARGET"}}
	n := New(searchTarget(), []Strategy{Breadcrumb("#crumb")}, nil).WithSettle(noSettle)

	require.NoError(t, n.Reach(context.Background(), d))
	assert.Equal(t, 1, d.checks)
	assert.Empty(t, d.clicks, "no strategy should run when already on target")
}

func TestReachAfterThreeSoftErrors(t *testing.T) {
	d := &fakeDriver{pages: []string{"SOFT404", "SOFT404", "SOFT404", "TARGET"}}
	n := New(searchTarget(), nil, nil).WithSettle(noSettle)

	require.NoError(t, n.Reach(context.Background(), d))
	assert.Equal(t, 4, d.checks)
	assert.Equal(t, 3, d.backs)
}

func TestReachExhaustsAfterFourAttempts(t *testing.T) {
	d := &fakeDriver{pages: []string{"ELSEWHERE"}}
	n := New(searchTarget(), []Strategy{Breadcrumb("#crumb")}, nil).WithSettle(noSettle)

	err := n.Reach(context.Background(), d)
	require.Error(t, err)
	assert.ErrorIs(t, err, scraper.ErrTargetUnreachable)
	assert.Equal(t, 4, d.checks)
}

func TestReachFirstActivatedStrategyWins(t *testing.T) {
	d := &fakeDriver{
		pages:     []string{"ELSEWHERE", "TARGET"},
		clickHits: map[string]bool{"#menu": true},
	}
	n := New(searchTarget(), []Strategy{
		Breadcrumb("#crumb"),
		LabelledElement("#menu"),
		DirectLink("/search"),
	}, nil).WithSettle(noSettle)

	require.NoError(t, n.Reach(context.Background(), d))
	// Breadcrumb missed, labelled element activated, direct link skipped.
	assert.Equal(t, []string{"#crumb", "#menu"}, d.clicks)
}

func TestReachStrategyErrorFallsThrough(t *testing.T) {
	d := &fakeDriver{
		pages:    []string{"ELSEWHERE", "TARGET"},
		clickErr: errors.New("stale element"),
		textHits: map[string]bool{"Property Search": true},
	}
	n := New(searchTarget(), []Strategy{
		Breadcrumb("#crumb"),
		MenuLink("Property Search"),
	}, nil).WithSettle(noSettle)

	require.NoError(t, n.Reach(context.Background(), d))
	assert.Equal(t, []string{"Property Search"}, d.textClicks)
}

func TestReachCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := &fakeDriver{pages: []string{"ELSEWHERE"}}
	n := New(searchTarget(), nil, nil).WithSettle(noSettle)

	err := n.Reach(ctx, d)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, d.checks)
}

func TestClickPathAllStepsMustHit(t *testing.T) {
	d := &fakeDriver{clickHits: map[string]bool{"#a": true}}
	p := ClickPath{Label: "two-step", Steps: []Step{{Selector: "#a"}, {Selector: "#b"}}}

	activated, err := p.Attempt(context.Background(), d)
	require.NoError(t, err)
	assert.False(t, activated)
	assert.Equal(t, []string{"#a", "#b"}, d.clicks)
}

func TestClickPathStepErrorSurfaces(t *testing.T) {
	d := &fakeDriver{clickErr: errors.New("detached frame")}
	p := Breadcrumb("#a")

	activated, err := p.Attempt(context.Background(), d)
	assert.False(t, activated)
	assert.ErrorContains(t, err, "detached frame")
}

func TestSecondaryMenuMixedSteps(t *testing.T) {
	d := &fakeDriver{
		clickHits: map[string]bool{"#more": true},
		textHits:  map[string]bool{"Records": true},
	}
	p := SecondaryMenu(Step{Selector: "#more"}, Step{Text: "Records"})

	activated, err := p.Attempt(context.Background(), d)
	require.NoError(t, err)
	assert.True(t, activated)
}
