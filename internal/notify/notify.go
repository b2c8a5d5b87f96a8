// Package notify delivers promotion events to chat platforms.
package notify

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
)

// Event is a platform-neutral notification.
type Event struct {
	Title  string
	Body   string
	Color  string // sidebar color hint, e.g. "#36a64f"
	Fields []Field
}

// Field is a key-value pair rendered in an attachment or embed.
type Field struct {
	Name  string
	Value string
	Short bool // hint: render side-by-side with another field
}

// Notifier delivers events.
type Notifier interface {
	Notify(ctx context.Context, evt Event) error
}

// Nop discards every event.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, Event) error { return nil }

// Multi fans an event out to every notifier and joins their errors.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, evt Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Promotion describes a completed promotion.
type Promotion struct {
	Name    string
	RunID   string
	Path    string
	Metrics map[string]float64
}

// PromotionEvent formats a promotion for chat.
func PromotionEvent(p Promotion) Event {
	evt := Event{
		Title: fmt.Sprintf("Model %s promoted", p.Name),
		Body:  fmt.Sprintf("Run %s is now current.", p.RunID),
		Color: "#36a64f",
		Fields: []Field{
			{Name: "run_id", Value: p.RunID, Short: true},
			{Name: "path", Value: p.Path},
		},
	}
	keys := make([]string, 0, len(p.Metrics))
	for k := range p.Metrics {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		evt.Fields = append(evt.Fields, Field{
			Name:  k,
			Value: strconv.FormatFloat(p.Metrics[k], 'f', 4, 64),
			Short: true,
		})
	}
	return evt
}
