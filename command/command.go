// Package command matches recognized speech against a fixed list of voice
// commands.
package command

import (
	"fmt"
	"strings"

	"github.com/pkg/browser"

	"rtscribe/log"
	"rtscribe/notify"
)

// Action kinds accepted in Spec.
const (
	KindOpenURL = "open_url"
	KindAlert   = "alert"
)

// Spec describes one command as it appears in configuration.
type Spec struct {
	Trigger string `yaml:"trigger"`
	Kind    string `yaml:"action"`
	// Target is the URL for open_url and the message for alert.
	Target string `yaml:"target"`
}

func (s Spec) Validate() error {
	if strings.TrimSpace(s.Trigger) == "" {
		return fmt.Errorf("command has an empty trigger")
	}
	switch s.Kind {
	case KindOpenURL, KindAlert:
	default:
		return fmt.Errorf("command %q: unknown action %q", s.Trigger, s.Kind)
	}
	if s.Target == "" {
		return fmt.Errorf("command %q: missing target", s.Trigger)
	}
	return nil
}

type Entry struct {
	Trigger string
	Name    string
	Action  func()
}

// Table is an ordered, read-only list of commands.
type Table struct {
	entries []Entry
}

// New stores triggers lowercased. Order is preserved; it decides the order
// in which matching actions fire.
func New(entries ...Entry) *Table {
	t := &Table{entries: make([]Entry, 0, len(entries))}
	for _, e := range entries {
		e.Trigger = strings.ToLower(strings.TrimSpace(e.Trigger))
		if e.Trigger == "" {
			continue
		}
		t.entries = append(t.entries, e)
	}
	return t
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

func (t *Table) Triggers() []string {
	if t == nil {
		return nil
	}
	out := make([]string, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.Trigger
	}
	return out
}

// Match returns the entries whose trigger occurs in fragment, in table order.
func (t *Table) Match(fragment string) []Entry {
	if t == nil {
		return nil
	}
	lower := strings.ToLower(fragment)
	var out []Entry
	for _, e := range t.entries {
		if strings.Contains(lower, e.Trigger) {
			out = append(out, e)
		}
	}
	return out
}

// Evaluate runs every matching action synchronously and returns the fired
// triggers. The same command fires again for every fragment that matches.
func (t *Table) Evaluate(fragment string) []string {
	var fired []string
	for _, e := range t.Match(fragment) {
		log.CommandFired(e.Trigger, e.Name)
		if e.Action != nil {
			e.Action()
		}
		fired = append(fired, e.Trigger)
	}
	return fired
}

// Actions supplies the side effects a Spec can name.
type Actions struct {
	OpenURL  func(url string) error
	Notifier notify.Notifier
}

func DefaultActions(n notify.Notifier) Actions {
	return Actions{OpenURL: browser.OpenURL, Notifier: n}
}

// Build turns validated specs into a Table.
func Build(specs []Spec, a Actions) (*Table, error) {
	entries := make([]Entry, 0, len(specs))
	for _, s := range specs {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		entries = append(entries, Entry{
			Trigger: s.Trigger,
			Name:    s.Kind + " " + s.Target,
			Action:  a.action(s),
		})
	}
	return New(entries...), nil
}

func (a Actions) action(s Spec) func() {
	target := s.Target
	switch s.Kind {
	case KindOpenURL:
		return func() {
			if a.OpenURL == nil {
				return
			}
			if err := a.OpenURL(target); err != nil {
				log.Warnf("open %s: %v", target, err)
			}
		}
	case KindAlert:
		return func() {
			if a.Notifier != nil {
				a.Notifier.Alert("rtscribe", target)
			}
		}
	}
	return nil
}
